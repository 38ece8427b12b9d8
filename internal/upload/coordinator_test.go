package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeMultipart struct {
	uploadID string
	created  []*s3.CreateMultipartUploadInput
	complete []*s3.CompleteMultipartUploadInput
	aborted  []*s3.AbortMultipartUploadInput
	err      error
}

func (f *fakeMultipart) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	id := f.uploadID
	return &s3.CreateMultipartUploadOutput{UploadId: &id}, nil
}

func (f *fakeMultipart) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.complete = append(f.complete, in)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeMultipart) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.aborted = append(f.aborted, in)
	return &s3.AbortMultipartUploadOutput{}, nil
}

type fakePresign struct {
	parts int
	gets  int
}

func (f *fakePresign) PresignUploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.parts++
	return &v4.PresignedHTTPRequest{URL: fmt.Sprintf("https://example.test/%s?part=%d", *in.Key, *in.PartNumber)}, nil
}

func (f *fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.gets++
	return &v4.PresignedHTTPRequest{URL: "https://example.test/view/" + *in.Key}, nil
}

func newTestCoordinator(t *testing.T, client *fakeMultipart, presign *fakePresign) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(client, presign, "depo-recordings", time.Hour)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func TestInitiateBuildsScopedKey(t *testing.T) {
	client := &fakeMultipart{uploadID: "mpu-1"}
	c := newTestCoordinator(t, client, &fakePresign{})

	uploadID, key, err := c.Initiate(context.Background(), "case-7", "conv-42")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if uploadID != "mpu-1" {
		t.Fatalf("unexpected upload id %q", uploadID)
	}
	if !strings.HasPrefix(key, "recordings/case-7/conv-42/") || !strings.HasSuffix(key, ".webm") {
		t.Fatalf("unexpected key %q", key)
	}
	if len(client.created) != 1 || *client.created[0].Bucket != "depo-recordings" {
		t.Fatalf("unexpected create call %+v", client.created)
	}
}

func TestInitiateWithoutConversationID(t *testing.T) {
	c := newTestCoordinator(t, &fakeMultipart{uploadID: "mpu-2"}, &fakePresign{})

	_, key, err := c.Initiate(context.Background(), "case-7", "")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !strings.Contains(key, "/pending-") {
		t.Fatalf("expected placeholder scope in key, got %q", key)
	}
}

func TestInitiateRequiresCaseID(t *testing.T) {
	c := newTestCoordinator(t, &fakeMultipart{uploadID: "mpu-3"}, &fakePresign{})

	if _, _, err := c.Initiate(context.Background(), "  ", "conv-1"); !errors.Is(err, ErrMissingCaseID) {
		t.Fatalf("expected ErrMissingCaseID, got %v", err)
	}
}

func TestPartURLs(t *testing.T) {
	presign := &fakePresign{}
	c := newTestCoordinator(t, &fakeMultipart{}, presign)

	urls, err := c.PartURLs(context.Background(), "mpu-1", "recordings/a/b/c.webm", []int32{1, 2, 3})
	if err != nil {
		t.Fatalf("part urls: %v", err)
	}
	if len(urls) != 3 || presign.parts != 3 {
		t.Fatalf("expected 3 urls, got %d (calls %d)", len(urls), presign.parts)
	}
	if !strings.Contains(urls[2], "part=2") {
		t.Fatalf("unexpected url for part 2: %q", urls[2])
	}

	if _, err := c.PartURLs(context.Background(), "mpu-1", "k", nil); !errors.Is(err, ErrNoParts) {
		t.Fatalf("expected ErrNoParts, got %v", err)
	}
	if _, err := c.PartURLs(context.Background(), "mpu-1", "k", []int32{0}); err == nil {
		t.Fatalf("expected error for part number 0")
	}
}

func TestCompleteSortsParts(t *testing.T) {
	client := &fakeMultipart{}
	c := newTestCoordinator(t, client, &fakePresign{})

	err := c.Complete(context.Background(), "mpu-1", "k", []Part{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	parts := client.complete[0].MultipartUpload.Parts
	for i, want := range []int32{1, 2, 3} {
		if *parts[i].PartNumber != want {
			t.Fatalf("part %d out of order: %d", i, *parts[i].PartNumber)
		}
	}
}

func TestCompleteRejectsMissingETag(t *testing.T) {
	client := &fakeMultipart{}
	c := newTestCoordinator(t, client, &fakePresign{})

	err := c.Complete(context.Background(), "mpu-1", "k", []Part{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: " "},
	})
	if !errors.Is(err, ErrMissingETag) {
		t.Fatalf("expected ErrMissingETag, got %v", err)
	}
	if len(client.complete) != 0 {
		t.Fatalf("complete must not reach the store on bad input")
	}
}

func TestAbort(t *testing.T) {
	client := &fakeMultipart{}
	c := newTestCoordinator(t, client, &fakePresign{})

	if err := c.Abort(context.Background(), "mpu-1", "k"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if len(client.aborted) != 1 {
		t.Fatalf("expected one abort call")
	}
}

func TestViewURL(t *testing.T) {
	presign := &fakePresign{}
	c := newTestCoordinator(t, &fakeMultipart{}, presign)

	url, err := c.ViewURL(context.Background(), "recordings/a/b/c.webm")
	if err != nil {
		t.Fatalf("view url: %v", err)
	}
	if url != "https://example.test/view/recordings/a/b/c.webm" {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := c.ViewURL(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

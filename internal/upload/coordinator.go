package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var (
	ErrMissingCaseID = errors.New("missing case id")
	ErrMissingETag   = errors.New("upload part missing etag")
	ErrNoParts       = errors.New("no upload parts supplied")
)

// DefaultURLTTL is how long presigned part and playback URLs stay valid.
const DefaultURLTTL = time.Hour

// Part is one uploaded chunk acknowledged by the object store.
type Part struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

type multipartAPI interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

type presignAPI interface {
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Coordinator orchestrates the three-phase multipart upload of a recording:
// initiate, per-part presigned URLs, complete. The browser PUTs chunk bytes
// straight to object storage; recording bytes never transit the gateway.
type Coordinator struct {
	client  multipartAPI
	presign presignAPI
	bucket  string
	urlTTL  time.Duration
}

func NewCoordinator(client multipartAPI, presign presignAPI, bucket string, urlTTL time.Duration) (*Coordinator, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing bucket")
	}
	if urlTTL <= 0 {
		urlTTL = DefaultURLTTL
	}
	return &Coordinator{client: client, presign: presign, bucket: bucket, urlTTL: urlTTL}, nil
}

// Initiate opens a multipart upload under a key namespaced by case and, when
// already known, the vendor conversation id.
func (c *Coordinator) Initiate(ctx context.Context, caseID, conversationID string) (uploadID, key string, err error) {
	if strings.TrimSpace(caseID) == "" {
		return "", "", ErrMissingCaseID
	}

	scope := conversationID
	if scope == "" {
		scope = "pending-" + uuid.NewString()
	}
	key = fmt.Sprintf("recordings/%s/%s/%s.webm", caseID, scope, uuid.NewString())

	out, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("video/webm"),
	})
	if err != nil {
		return "", "", fmt.Errorf("create multipart upload: %w", err)
	}
	if out.UploadId == nil || *out.UploadId == "" {
		return "", "", fmt.Errorf("object store returned no upload id")
	}
	return *out.UploadId, key, nil
}

// PartURLs issues one time-boxed presigned URL per requested part number.
func (c *Coordinator) PartURLs(ctx context.Context, uploadID, key string, partNumbers []int32) (map[int32]string, error) {
	if uploadID == "" || key == "" {
		return nil, fmt.Errorf("missing upload id or key")
	}
	if len(partNumbers) == 0 {
		return nil, ErrNoParts
	}

	urls := make(map[int32]string, len(partNumbers))
	for _, partNumber := range partNumbers {
		if partNumber < 1 {
			return nil, fmt.Errorf("invalid part number %d", partNumber)
		}
		req, err := c.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(c.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
		}, s3.WithPresignExpires(c.urlTTL))
		if err != nil {
			return nil, fmt.Errorf("presign part %d: %w", partNumber, err)
		}
		urls[partNumber] = req.URL
	}
	return urls, nil
}

// Complete finalizes the upload. Every part must report the integrity tag
// the store assigned on PUT; a missing tag means a missing or corrupt chunk
// and fails the whole upload rather than finalizing a broken recording.
func (c *Coordinator) Complete(ctx context.Context, uploadID, key string, parts []Part) error {
	if uploadID == "" || key == "" {
		return fmt.Errorf("missing upload id or key")
	}
	if len(parts) == 0 {
		return ErrNoParts
	}

	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part.ETag) == "" {
			return fmt.Errorf("%w: part %d", ErrMissingETag, part.PartNumber)
		}
		completed = append(completed, s3types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.PartNumber),
		})
	}
	// The store requires ascending part order on completion.
	sort.Slice(completed, func(i, j int) bool {
		return *completed[i].PartNumber < *completed[j].PartNumber
	})

	_, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

// Abort discards an unfinished upload. No scheduled reaper calls this; it
// exists for operator cleanup of abandoned sessions.
func (c *Coordinator) Abort(ctx context.Context, uploadID, key string) error {
	_, err := c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// ViewURL returns a short-lived playback URL for a stored recording.
func (c *Coordinator) ViewURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("missing key")
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.urlTTL))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

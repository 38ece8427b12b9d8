package webhook

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := "secret"
	body := []byte(`{"type":"post_call_transcription"}`)
	now := time.Now()

	header := Sign(secret, body, now)

	if err := VerifySignature(secret, header, body, now, DefaultMaxSkew); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureMutatedBody(t *testing.T) {
	secret := "secret"
	body := []byte(`{"type":"post_call_transcription"}`)
	now := time.Now()
	header := Sign(secret, body, now)

	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01

	if err := VerifySignature(secret, header, mutated, now, DefaultMaxSkew); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	body := []byte(`{}`)
	now := time.Now()
	header := Sign("secret", body, now)

	if err := VerifySignature("other", header, body, now, DefaultMaxSkew); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureMissing(t *testing.T) {
	if err := VerifySignature("secret", "", []byte("x"), time.Now(), DefaultMaxSkew); err != ErrMissingSignature {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if err := VerifySignature("", "t=1,v0=ab", []byte("x"), time.Now(), DefaultMaxSkew); err != ErrMissingSignature {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestVerifySignatureReplay(t *testing.T) {
	secret := "secret"
	body := []byte(`{}`)
	now := time.Now()

	for _, drift := range []time.Duration{-10 * time.Minute, 10 * time.Minute} {
		header := Sign(secret, body, now.Add(drift))
		if err := VerifySignature(secret, header, body, now, DefaultMaxSkew); err != ErrStaleTimestamp {
			t.Fatalf("drift %v: expected ErrStaleTimestamp, got %v", drift, err)
		}
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	cases := []string{
		"v0=abcd",
		"t=123",
		"t=12.5,v0=abcd",
		"t=-123,v0=abcd",
		"t=notatime,v0=abcd",
		"garbage",
	}
	for _, header := range cases {
		if err := VerifySignature("secret", header, []byte("x"), time.Now(), DefaultMaxSkew); err != ErrInvalidSignature {
			t.Fatalf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestVerifySignatureUppercaseMAC(t *testing.T) {
	secret := "secret"
	body := []byte(`{"ok":true}`)
	now := time.Now()
	header := Sign(secret, body, now)

	// Some senders hex-encode in uppercase. Only the digest is
	// case-insensitive; the v0 key itself is not.
	parts := strings.SplitN(header, ",v0=", 2)
	upper := parts[0] + ",v0=" + strings.ToUpper(parts[1])
	if err := VerifySignature(secret, upper, body, now, DefaultMaxSkew); err != nil {
		t.Fatalf("expected uppercase MAC to verify, got %v", err)
	}
}

func TestSignHeaderShape(t *testing.T) {
	header := Sign("secret", []byte("body"), time.Unix(1700000000, 0))
	if !strings.HasPrefix(header, fmt.Sprintf("t=%d,v0=", 1700000000)) {
		t.Fatalf("unexpected header shape: %s", header)
	}
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("stale webhook timestamp")
)

// DefaultMaxSkew is how far a signed timestamp may drift from the
// server clock before the delivery is treated as a replay.
const DefaultMaxSkew = 5 * time.Minute

// VerifySignature validates the vendor's signature header against the raw
// request body. The header is a comma-separated list of key=value pairs and
// must carry a unix-seconds timestamp under "t" and a hex HMAC-SHA256 under
// "v0", computed over "{t}.{body}".
//
// The body must be the exact bytes read off the wire; re-serializing the
// payload before verification breaks the MAC.
func VerifySignature(secret, header string, body []byte, now time.Time, maxSkew time.Duration) error {
	if secret == "" || header == "" {
		return ErrMissingSignature
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	var timestamp, signature string
	for _, field := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v0":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return ErrInvalidSignature
	}
	if !allDigits(timestamp) {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	requestTime := time.Unix(ts, 0)
	if now.Sub(requestTime) > maxSkew || requestTime.Sub(now) > maxSkew {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}

	return nil
}

// Sign produces a signature header for body at the given time. Used by the
// CLI and tests; the gateway itself only verifies.
func Sign(secret string, body []byte, now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return fmt.Sprintf("t=%s,v0=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

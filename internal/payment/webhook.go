package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the accepted age of a webhook event.
const DefaultTolerance = 5 * time.Minute

// EventPaymentSucceeded is the event type emitted when a charge settles.
const EventPaymentSucceeded = "payment_intent.succeeded"

// ErrInvalidSignature is returned when the webhook payload fails
// cryptographic verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is a signed webhook notification from the processor.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// ParseEvent verifies the signature header against the shared secret and
// decodes the payload. The header format is "t=<unix>,v1=<hex>", where the
// signature is HMAC-SHA256 over "<unix>.<payload>". Events older than the
// tolerance are rejected to limit replay.
func ParseEvent(payload []byte, sigHeader, secret string, tolerance time.Duration) (*Event, error) {
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if tolerance > 0 && time.Since(time.Unix(timestamp, 0)) > tolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(timestamp, payload, secret)

	verified := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			verified = true
			break
		}
	}
	if !verified {
		return nil, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	return &event, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		signatures []string
		hasT       bool
	)

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
			hasT = true
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if !hasT || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	return timestamp, signatures, nil
}

func computeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a signature header for a payload. Used by tests and
// local tooling to emulate processor deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(ts, payload, secret))
}

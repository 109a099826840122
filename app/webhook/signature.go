package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignatureHeaders = errors.New("missing signature headers")
	ErrTimestampOutOfRange     = errors.New("timestamp out of range")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrMalformedEvent          = errors.New("malformed event payload")
)

const defaultToleranceSeconds = 300

// Event is the decoded webhook payload. It lives only for the duration of
// one request and is never persisted.
type Event struct {
	Action string    `json:"action"`
	Type   string    `json:"type"`
	Data   EventData `json:"data"`
}

type EventData struct {
	ID                string                 `json:"id"`
	Status            string                 `json:"status"`
	CheckoutID        string                 `json:"checkout_id"`
	CheckoutSessionID string                 `json:"checkout_session_id"`
	PlanID            string                 `json:"plan_id"`
	ProductID         string                 `json:"product_id"`
	UserID            string                 `json:"user_id"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// ActionTag returns the event's action string, falling back to the type
// field for providers that label events with "type" instead of "action".
func (e *Event) ActionTag() string {
	if strings.TrimSpace(e.Action) != "" {
		return e.Action
	}
	return e.Type
}

// Validator verifies the HMAC signature and timestamp freshness of a raw
// webhook body. Verification is fully side-effect free: no persisted state
// is touched on any path through Verify.
type Validator struct {
	secret    []byte
	tolerance int64
}

func NewValidator(secret string, toleranceSeconds int64) *Validator {
	if toleranceSeconds <= 0 {
		toleranceSeconds = defaultToleranceSeconds
	}
	return &Validator{
		secret:    decodeSecret(secret),
		tolerance: toleranceSeconds,
	}
}

// Verify checks the resolved header triple against the raw body bytes and
// returns the decoded event. The body must be the exact bytes from the wire;
// any re-serialization before this point breaks the signature input.
func (v *Validator) Verify(triple HeaderTriple, body []byte, now time.Time) (*Event, error) {
	if triple.Signature == "" {
		return nil, ErrMissingSignatureHeaders
	}

	seconds, ok := NormalizeTimestamp(triple.Timestamp)
	if !ok {
		return nil, ErrMissingSignatureHeaders
	}
	tsUnix, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return nil, ErrMissingSignatureHeaders
	}

	skew := now.Unix() - tsUnix
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return nil, ErrTimestampOutOfRange
	}

	if !v.signatureMatches(triple, seconds, body) {
		return nil, ErrInvalidSignature
	}

	event := &Event{}
	if err := json.Unmarshal(body, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return event, nil
}

// signatureMatches computes the expected HMAC-SHA256 over the signed content
// and constant-time-compares it against every signature candidate carried in
// the header. The signed content is "<id>.<timestamp>.<body>" when the
// chosen family supplied an idempotency id, "<timestamp>.<body>" otherwise:
// the same cryptographic scheme is exposed under different header
// vocabularies, so the header triple decides which content the provider
// actually signed.
func (v *Validator) signatureMatches(triple HeaderTriple, seconds string, body []byte) bool {
	signedContents := make([][]byte, 0, 2)
	if triple.ID != "" {
		signedContents = append(signedContents, []byte(triple.ID+"."+seconds+"."+string(body)))
	}
	signedContents = append(signedContents, []byte(seconds+"."+string(body)))

	candidates := signatureCandidates(triple.Signature)
	if len(candidates) == 0 {
		return false
	}

	for _, content := range signedContents {
		mac := hmac.New(sha256.New, v.secret)
		_, _ = mac.Write(content)
		expected := mac.Sum(nil)

		for _, candidate := range candidates {
			if hmac.Equal(candidate, expected) {
				return true
			}
		}
	}

	return false
}

// signatureCandidates parses the header value into raw signature bytes.
// Accepted encodings: space-separated "v1,<base64>" entries (svix style),
// comma-separated "t=...,v1=<hex>" pairs (stripe style), and bare hex or
// base64.
func signatureCandidates(header string) [][]byte {
	candidates := make([][]byte, 0, 2)

	appendDecoded := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		// A value can be valid hex and valid base64 at once; keep both
		// decodings as candidates rather than guessing.
		if decoded, err := hex.DecodeString(raw); err == nil {
			candidates = append(candidates, decoded)
		}
		if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
			candidates = append(candidates, decoded)
		}
	}

	for _, entry := range strings.Fields(header) {
		switch {
		case strings.HasPrefix(entry, "v1,"):
			appendDecoded(strings.TrimPrefix(entry, "v1,"))
		case strings.Contains(entry, "v1="):
			for _, part := range strings.Split(entry, ",") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "v1=") {
					appendDecoded(strings.TrimPrefix(part, "v1="))
				}
			}
		default:
			appendDecoded(entry)
		}
	}

	return candidates
}

// decodeSecret unwraps the provider's "whsec_"-prefixed base64 secret; a
// secret without the prefix is used as raw bytes.
func decodeSecret(secret string) []byte {
	trimmed := strings.TrimSpace(secret)
	if rest, ok := strings.CutPrefix(trimmed, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(rest); err == nil {
			return decoded
		}
	}
	return []byte(trimmed)
}

// SignaturePreview returns a bounded preview of a sensitive header value for
// diagnostics. Full signatures and timestamps must never be logged.
func SignaturePreview(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}

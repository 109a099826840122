package webhook

import (
	"errors"
	"net/http"
	"strings"
)

// Family identifies one self-consistent set of header names used by a
// provider or proxy convention for the same logical signature triple.
type Family string

const (
	FamilyWhop    Family = "whop"
	FamilySvix    Family = "svix"
	FamilyGeneric Family = "webhook"
	FamilyProxy   Family = "proxy"
)

var ErrMissingSignature = errors.New("missing signature headers")

type familySpec struct {
	family          Family
	signatureHeader string
	timestampHeader string
	idHeader        string
}

// Precedence order: the primary provider family wins over the
// provider-compatible family, which wins over the generic family, which wins
// over proxy-rewritten names.
var headerFamilies = []familySpec{
	{FamilyWhop, "whop-signature", "whop-timestamp", "whop-id"},
	{FamilySvix, "svix-signature", "svix-timestamp", "svix-id"},
	{FamilyGeneric, "webhook-signature", "webhook-timestamp", "webhook-id"},
	{FamilyProxy, "x-whop-signature", "x-whop-timestamp", "x-whop-id"},
}

const proxyTimestampHeader = "x-webhook-timestamp"

// HeaderTriple is the signature/timestamp/id selection for one request.
type HeaderTriple struct {
	Family    Family
	Signature string
	Timestamp string
	ID        string
}

// ResolveHeaders picks exactly one header family from the inbound headers. A
// family is selected when its signature header is non-empty; the idempotency
// id is optional. The timestamp is re-derived independently of the chosen
// family because proxies are known to rename the signature header but not
// the timestamp header, and vice versa. Pure function: the request body is
// never read here, so the validator still sees the exact raw bytes.
func ResolveHeaders(h http.Header) (HeaderTriple, error) {
	for _, spec := range headerFamilies {
		signature := strings.TrimSpace(h.Get(spec.signatureHeader))
		if signature == "" {
			continue
		}
		return HeaderTriple{
			Family:    spec.family,
			Signature: signature,
			Timestamp: resolveTimestamp(h, spec),
			ID:        strings.TrimSpace(h.Get(spec.idHeader)),
		}, nil
	}
	return HeaderTriple{}, ErrMissingSignature
}

func resolveTimestamp(h http.Header, chosen familySpec) string {
	if ts := strings.TrimSpace(h.Get(chosen.timestampHeader)); ts != "" {
		return ts
	}
	for _, spec := range headerFamilies {
		if spec.family == chosen.family {
			continue
		}
		if ts := strings.TrimSpace(h.Get(spec.timestampHeader)); ts != "" {
			return ts
		}
	}
	return strings.TrimSpace(h.Get(proxyTimestampHeader))
}

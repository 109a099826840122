package webhook

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Upstream proxy and provider configurations serialize webhook timestamps
// inconsistently: plain epoch seconds or milliseconds, ISO dates, values
// wrapped in Base64, embedded in JSON, or tucked into key=value blobs,
// sometimes nested. NormalizeTimestamp unwraps all of them to epoch seconds.
// The rules are structurally terminating (each recursion works on a strictly
// simpler representation) but the depth cap guards future rule additions
// against untrusted input.

const maxNormalizeDepth = 5

var (
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)

	// key=value delimited by start / ? / & / # / ; / whitespace, query style.
	queryTimestampRe = regexp.MustCompile(`(?i)(?:^|[?&#;\s])(ts|timestamp|time|t)=([^&#;\s]+)`)

	// key:value or key=value delimited by start / space / , / ; / |.
	delimitedTimestampRe = regexp.MustCompile(`(?i)(?:^|[\s,;|])(ts|timestamp|time|t)\s*[:=]\s*([^\s,;|]+)`)

	base64AlphabetRe = regexp.MustCompile(`^[A-Za-z0-9+/\-_=]+$`)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// NormalizeTimestamp reduces an arbitrarily encoded point in time to a Unix
// seconds string. Returns false when no rule matches.
func NormalizeTimestamp(raw string) (string, bool) {
	return normalizeTimestamp(strings.TrimSpace(raw), 0)
}

func normalizeTimestamp(raw string, depth int) (string, bool) {
	if raw == "" || depth > maxNormalizeDepth {
		return "", false
	}

	if digitsOnlyRe.MatchString(raw) {
		switch len(raw) {
		case 10:
			return raw, true
		case 13:
			millis, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return "", false
			}
			return strconv.FormatInt(millis/1000, 10), true
		}
	}

	if seconds, ok := parseDateString(raw); ok {
		return seconds, true
	}

	if captured, ok := captureRegexValue(queryTimestampRe, raw); ok {
		if normalized, ok := normalizeTimestamp(captured, depth+1); ok {
			return normalized, true
		}
	}

	if decoded, ok := decodeBase64Text(raw); ok {
		if normalized, ok := normalizeTimestamp(decoded, depth+1); ok {
			return normalized, true
		}
	}

	if captured, ok := captureJSONValue(raw); ok {
		if normalized, ok := normalizeTimestamp(captured, depth+1); ok {
			return normalized, true
		}
	}

	if captured, ok := captureRegexValue(delimitedTimestampRe, raw); ok {
		if normalized, ok := normalizeTimestamp(captured, depth+1); ok {
			return normalized, true
		}
	}

	return "", false
}

func parseDateString(raw string) (string, bool) {
	// Bare digit strings are epoch encodings, never dates.
	if digitsOnlyRe.MatchString(raw) {
		return "", false
	}
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return strconv.FormatInt(floorDiv(parsed.UnixMilli(), 1000), 10), true
	}
	return "", false
}

func captureRegexValue(re *regexp.Regexp, raw string) (string, bool) {
	match := re.FindStringSubmatch(raw)
	if match == nil {
		return "", false
	}
	captured := strings.TrimSpace(match[2])
	if captured == "" || len(captured) >= len(raw) {
		return "", false
	}
	return captured, true
}

func decodeBase64Text(raw string) (string, bool) {
	if len(raw) < 8 || !base64AlphabetRe.MatchString(raw) {
		return "", false
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(raw, "-", "+"), "_", "/")
	if pad := len(normalized) % 4; pad != 0 {
		normalized += strings.Repeat("=", 4-pad)
	}

	decoded, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

func captureJSONValue(raw string) (string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", false
	}

	for _, key := range []string{"ts", "timestamp", "time", "t"} {
		if value, ok := payload[key]; ok {
			if captured, ok := jsonScalarText(value); ok {
				return captured, true
			}
		}
	}

	if data, ok := payload["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err == nil {
			for _, key := range []string{"ts", "timestamp"} {
				if value, ok := nested[key]; ok {
					if captured, ok := jsonScalarText(value); ok {
						return captured, true
					}
				}
			}
		}
	}

	return "", false
}

func jsonScalarText(value json.RawMessage) (string, bool) {
	var asString string
	if err := json.Unmarshal(value, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		return asString, asString != ""
	}

	var asNumber json.Number
	if err := json.Unmarshal(value, &asNumber); err == nil {
		if n, err := asNumber.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
	}

	return "", false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

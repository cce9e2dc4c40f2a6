package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// plainKeys are logged verbatim by MaskField. Signer addresses and club ids
// are public on the ledger; signatures and tokens are not.
var plainKeys = map[string]struct{}{
	"error":      {},
	"reason":     {},
	"component":  {},
	"club_id":    {},
	"route":      {},
	"method":     {},
	"status":     {},
	"request_id": {},
	"signer":     {},
	"subject":    {},
	"timestamp":  {},
}

// IsAllowlisted reports whether key is logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns value under key, or RedactedValue when key is not
// allowlisted. Empty values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAuthorization keeps the scheme of an Authorization header and hides the
// credential, so "Bearer eyJ..." logs as "Bearer [REDACTED]".
func MaskAuthorization(header string) slog.Attr {
	header = strings.TrimSpace(header)
	if header == "" {
		return slog.String("authorization", "")
	}
	scheme, _, ok := strings.Cut(header, " ")
	if !ok {
		return slog.String("authorization", RedactedValue)
	}
	return slog.String("authorization", scheme+" "+RedactedValue)
}

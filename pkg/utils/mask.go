// Package utils holds small, dependency-free helpers shared by the gateway's
// own packages: credential masking for sanitized diagnostics and a thin
// error-wrapping convenience used when propagating parse/decode failures.
package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// Wrap annotates err with message, preserving it for errors.Is/As via %w.
// Returns nil if err is nil, so call sites can wrap unconditionally.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// MaskURL strips userinfo (and, failing a clean parse, anything that looks
// like credentials) from a URL so it is safe to surface in sanitized
// diagnostics such as the admin GetConfig command.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return maskURLFallback(raw)
	}
	u.User = nil
	return u.String()
}

// maskURLFallback handles values that don't parse cleanly as URLs but still
// contain a "user:pass@" prefix (e.g. bare host:port forms).
func maskURLFallback(raw string) string {
	if i := strings.Index(raw, "@"); i >= 0 {
		if j := strings.Index(raw, "://"); j >= 0 && j < i {
			return raw[:j+3] + raw[i+1:]
		}
		return raw[i+1:]
	}
	return raw
}

// MaskHexKey shows only the first 6 and last 4 characters of a hex-encoded
// key, per the admin GetConfig/ListAdmins masking rule.
func MaskHexKey(hexKey string) string {
	if len(hexKey) <= 10 {
		return strings.Repeat("*", len(hexKey))
	}
	return hexKey[:6] + strings.Repeat("*", len(hexKey)-10) + hexKey[len(hexKey)-4:]
}

// MaskAdminKeysEnv masks every public key embedded in the raw
// "name:pubkey_hex:role,..." admin_keys environment value.
func MaskAdminKeysEnv(raw string) string {
	if raw == "" {
		return ""
	}
	entries := strings.Split(raw, ",")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(strings.TrimSpace(e), ":", 3)
		if len(parts) != 3 {
			out = append(out, e)
			continue
		}
		parts[1] = MaskHexKey(parts[1])
		out = append(out, strings.Join(parts, ":"))
	}
	return strings.Join(out, ",")
}

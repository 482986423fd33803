package scan

import (
	"crypto/md5" //nolint:gosec // fingerprint scopes cache lookups, not a security boundary
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// NormalizedURL is a validated absolute URL with an http or https scheme.
// It is a value: created once per request, immutable, never persisted as-is.
type NormalizedURL struct {
	parsed *url.URL
}

// String returns the canonical string form.
func (u NormalizedURL) String() string {
	if u.parsed == nil {
		return ""
	}
	return u.parsed.String()
}

// Host returns the URL host, including any port.
func (u NormalizedURL) Host() string {
	if u.parsed == nil {
		return ""
	}
	return u.parsed.Host
}

// URL returns a copy of the underlying parsed URL.
func (u NormalizedURL) URL() *url.URL {
	if u.parsed == nil {
		return &url.URL{}
	}
	cp := *u.parsed
	return &cp
}

// Resolve resolves a possibly-relative href against this URL.
func (u NormalizedURL) Resolve(href string) (NormalizedURL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return NormalizedURL{}, fmt.Errorf("%w: parse href %q: %v", ErrInvalidURL, href, err)
	}
	resolved := u.URL().ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return NormalizedURL{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, resolved.Scheme)
	}
	resolved.Fragment = ""
	return NormalizedURL{parsed: resolved}, nil
}

// NormalizeURL validates and canonicalizes a user-supplied URL string.
// Whitespace is trimmed and a missing scheme defaults to https. The only
// accepted schemes are http and https. Pure function, no side effects.
func NormalizeURL(raw string) (NormalizedURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NormalizedURL{}, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return NormalizedURL{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return NormalizedURL{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return NormalizedURL{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return NormalizedURL{parsed: parsed}, nil
}

// Fingerprint is the deterministic digest of a normalized URL used as the
// cache/storage key together with an owner identity.
type Fingerprint string

// FingerprintURL digests the lower-cased, trimmed canonical URL string.
// Identical normalized URLs differing only in case or surrounding whitespace
// always yield identical fingerprints.
func FingerprintURL(u NormalizedURL) Fingerprint {
	canonical := strings.ToLower(strings.TrimSpace(u.String()))
	sum := md5.Sum([]byte(canonical)) //nolint:gosec // see above
	return Fingerprint(hex.EncodeToString(sum[:]))
}

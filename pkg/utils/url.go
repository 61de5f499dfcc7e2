package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// HashURL creates a SHA256 hash of a URL string.
// This is useful for creating consistent, safe keys for Redis.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeURL lowercases scheme and host, drops default ports and the
// fragment, and turns an empty path into "/".
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SameURL compares two URLs after normalization. Unparseable input falls back
// to a plain string comparison.
func SameURL(a, b string) bool {
	na, errA := NormalizeURL(a)
	nb, errB := NormalizeURL(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return na == nb
}

// ValidateAuditURL accepts only absolute http(s) URLs.
func ValidateAuditURL(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", rawURL)
	}
	return nil
}

package app

import "strings"

// shortID truncates long IDs for readable logging.
func shortID(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:6] + "…" + s[len(s)-6:]
}

// normalizeAddress lowercases a wallet address for case-insensitive lookups.
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

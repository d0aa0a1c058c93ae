package auth

import "strings"

// ExtractBearer pulls the raw token out of an Authorization header. It
// returns ok=false if the header is absent or not a well-formed "Bearer "
// header — a connection with no header is simply unauthenticated, not an
// error (§1: token presence is checked, never required).
func ExtractBearer(header string) (token string, ok bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

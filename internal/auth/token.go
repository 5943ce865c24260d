// Package auth derives a stable user key from the session token. The key
// scopes client-local state (round-index counters, recovery snapshots) to the
// authenticated user rather than to the device.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserKey extracts the user identifier from a JWT without verifying the
// signature; the client never holds the signing key and only needs a stable
// scoping string. Prefers the `id` claim, falls back to `sub`.
func UserKey(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if id, ok := claims["id"]; ok {
		if s := claimString(id); s != "" {
			return s, nil
		}
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token has no id or sub claim")
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	}
	return ""
}

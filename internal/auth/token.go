package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseTokenExpiry extracts the exp claim from a JWT access token.
// The middle segment is decoded as base64url, tolerating both padded and
// unpadded forms. A missing or malformed claim is not an error condition
// for the session: the expiry simply stays unknown and refresh decisions
// fall back to explicit 401 handling.
func parseTokenExpiry(token string) (*time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("token has %d segments, want at least 2", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode token payload: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("token has no numeric exp claim")
	}

	t := time.Unix(int64(exp), 0)
	return &t, nil
}

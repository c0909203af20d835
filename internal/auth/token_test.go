package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

// forgeToken builds an unsigned JWT-shaped token with the given claims.
func forgeToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestParseTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := forgeToken(t, map[string]interface{}{"sub": "user-1", "exp": exp})

	got, err := parseTokenExpiry(token)
	if err != nil {
		t.Fatalf("parseTokenExpiry failed: %v", err)
	}
	if got.Unix() != exp {
		t.Errorf("expected expiry %d, got %d", exp, got.Unix())
	}
}

func TestParseTokenExpiryPaddedPayload(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	payload, _ := json.Marshal(map[string]interface{}{"exp": exp})
	// Standard base64url with padding must also parse.
	token := "h." + base64.URLEncoding.EncodeToString(payload) + ".s"

	got, err := parseTokenExpiry(token)
	if err != nil {
		t.Fatalf("parseTokenExpiry failed on padded payload: %v", err)
	}
	if got.Unix() != exp {
		t.Errorf("expected expiry %d, got %d", exp, got.Unix())
	}
}

func TestParseTokenExpiryErrors(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"not a jwt", "plain-opaque-token"},
		{"bad base64", "h.###.s"},
		{"payload not json", "h." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseTokenExpiry(tc.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseTokenExpiryMissingExp(t *testing.T) {
	token := forgeToken(t, map[string]interface{}{"sub": "user-1"})
	if _, err := parseTokenExpiry(token); err == nil {
		t.Error("expected error when exp claim is absent")
	}
}

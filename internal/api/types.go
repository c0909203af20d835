// Package api implements the HTTP client for the tradewatch collector.
//
// The collector speaks a tRPC-style HTTP protocol: requests POST a
// {"input": ...} envelope to /trpc/{router}.{procedure} and successful
// responses nest the typed payload as {"result": {"data": ...}}. The
// envelope is wrapped and unwrapped only in this package.
package api

import "github.com/tradewatch/agent/internal/models"

// LoginRequest is the input for auth.login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the input for auth.register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// RefreshRequest is the input for auth.refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UserInfo describes the authenticated user.
type UserInfo struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// LoginResponse is the payload of a successful auth.login.
type LoginResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         UserInfo `json:"user"`
}

// RefreshResponse is the payload of a successful auth.refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// SubmitRequest is the input for trades.submit. ClientID is the
// process-stable agent identifier, not tied to the user account.
// The event ids double as the idempotency keys the collector
// deduplicates on.
type SubmitRequest struct {
	ClientID string              `json:"clientId"`
	Username string              `json:"username,omitempty"`
	Trades   []models.TradeEvent `json:"trades"`
}

// SubmitResponse is the payload of a successful trades.submit.
type SubmitResponse struct {
	Accepted int `json:"accepted"`
}

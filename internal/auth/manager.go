// Package auth owns the authentication session for the agent process.
// No other component reads or writes token state directly.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradewatch/agent/internal/api"
	"github.com/tradewatch/agent/internal/db"
	apperrors "github.com/tradewatch/agent/internal/errors"
	"github.com/tradewatch/agent/internal/logging"
	"github.com/tradewatch/agent/internal/models"
)

// refreshWindow is how far ahead of expiry a token counts as expiring.
const refreshWindow = 5 * time.Minute

// Notifier receives session lifecycle notifications.
// Implementations must not block.
type Notifier interface {
	AuthExpired()
}

// Manager holds the current token pair, tracks expiry, and performs
// single-flight refresh. Tokens are persisted through the settings store
// so the session survives restarts.
type Manager struct {
	client *api.Client
	store  *db.Store

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    *time.Time
	refreshing   bool

	notifier Notifier
}

// NewManager creates a Manager and loads any persisted session.
func NewManager(client *api.Client, store *db.Store) (*Manager, error) {
	m := &Manager{
		client: client,
		store:  store,
	}

	access, err := store.GetSetting(models.SettingAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := store.GetSetting(models.SettingRefreshToken)
	if err != nil {
		return nil, err
	}

	m.accessToken = access
	m.refreshToken = refresh
	if access != "" {
		if exp, err := parseTokenExpiry(access); err == nil {
			m.expiresAt = exp
		} else {
			logging.Warn("could not parse stored token expiry", logrus.Fields{"reason": err.Error()})
		}
		logging.Info("loaded saved session")
	}
	return m, nil
}

// SetNotifier installs the session notifier. Must be called before the
// sync cycle starts; not safe to swap concurrently with refreshes.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// CurrentAccessToken returns the in-memory access token. Empty means
// unauthenticated.
func (m *Manager) CurrentAccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// IsAuthenticated reports whether an access token is present.
func (m *Manager) IsAuthenticated() bool {
	return m.CurrentAccessToken() != ""
}

// IsExpiringSoon reports whether a known expiry falls within the refresh
// window. Unknown expiry reports false; a stale token then surfaces as a
// 401 on submission instead.
func (m *Manager) IsExpiringSoon() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiringSoonLocked()
}

func (m *Manager) expiringSoonLocked() bool {
	if m.expiresAt == nil {
		return false
	}
	return m.expiresAt.Before(time.Now().Add(refreshWindow))
}

// RefreshIfNeeded performs at most one token refresh. Concurrent callers
// while a refresh is in flight return success immediately: the in-flight
// refresh either succeeds or clears the session itself on 401. A refresh
// failure other than 401 keeps the previous token so the caller can retry
// on the next cycle.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		return nil
	}
	if m.accessToken == "" || m.refreshToken == "" {
		m.mu.Unlock()
		return apperrors.New(apperrors.ErrAuth, "no session to refresh")
	}
	if !m.expiringSoonLocked() {
		m.mu.Unlock()
		return nil
	}
	m.refreshing = true
	refreshToken := m.refreshToken
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	logging.Info("refreshing access token")
	resp, err := m.client.Refresh(ctx, refreshToken)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthorized) {
			logging.Warn("refresh token rejected, clearing session")
			m.clearSession()
			m.notifyExpired()
			return apperrors.Wrap(apperrors.ErrUnauthorized, "session expired", err)
		}
		logging.Error("token refresh failed", err)
		return apperrors.Wrap(apperrors.ErrAuth, "token refresh failed", err)
	}

	m.mu.Lock()
	m.accessToken = resp.AccessToken
	m.expiresAt = nil
	if exp, perr := parseTokenExpiry(resp.AccessToken); perr == nil {
		m.expiresAt = exp
	}
	pairs := map[string]string{
		models.SettingAccessToken:  m.accessToken,
		models.SettingRefreshToken: m.refreshToken,
	}
	m.mu.Unlock()

	if err := m.store.SetSettings(pairs); err != nil {
		// The refreshed token still works for this process lifetime.
		logging.Error("failed to persist refreshed token", err)
	}
	logging.Info("access token refreshed")
	return nil
}

// Login authenticates with the collector and persists the new session.
func (m *Manager) Login(ctx context.Context, email, password string) (*api.UserInfo, error) {
	resp, err := m.client.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAuth, "login failed", err)
	}
	if err := m.installSession(resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, err
	}
	logging.Info("logged in", logrus.Fields{"email": email})
	return &resp.User, nil
}

// Register creates an account and logs in implicitly.
func (m *Manager) Register(ctx context.Context, email, username, password, name string) (*api.UserInfo, error) {
	err := m.client.Register(ctx, &api.RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
		Name:     name,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAuth, "registration failed", err)
	}
	return m.Login(ctx, email, password)
}

// Logout clears the session and the persisted tokens.
func (m *Manager) Logout() error {
	if err := m.clearSession(); err != nil {
		return err
	}
	logging.Info("logged out")
	return nil
}

// HandleUnauthorized is the shared 401 path: the sync engine delegates
// here when the collector rejects the access token mid-batch.
func (m *Manager) HandleUnauthorized() {
	logging.Warn("collector rejected access token, clearing session")
	m.clearSession()
	m.notifyExpired()
}

func (m *Manager) notifyExpired() {
	if m.notifier != nil {
		m.notifier.AuthExpired()
	}
}

// installSession replaces the session wholesale and persists both token
// fields in one transaction. A torn write that keeps an access token
// without its refresh token would strand the session, so the pair always
// travels together.
func (m *Manager) installSession(accessToken, refreshToken string) error {
	m.mu.Lock()
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.expiresAt = nil
	if exp, err := parseTokenExpiry(accessToken); err == nil {
		m.expiresAt = exp
	} else {
		logging.Warn("could not parse token expiry", logrus.Fields{"reason": err.Error()})
	}
	m.mu.Unlock()

	return m.store.SetSettings(map[string]string{
		models.SettingAccessToken:  accessToken,
		models.SettingRefreshToken: refreshToken,
	})
}

func (m *Manager) clearSession() error {
	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.expiresAt = nil
	m.mu.Unlock()

	return m.store.SetSettings(map[string]string{
		models.SettingAccessToken:  "",
		models.SettingRefreshToken: "",
	})
}

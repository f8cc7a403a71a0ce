// Package session owns the bearer token used to talk to the finance API.
//
// A [Manager] hands out usable tokens, logging in when there is none.
// Concurrent callers share one login. Tokens are persisted to a secure store
// and dropped from memory once they expire.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"myfinances/internal/core"
	applog "myfinances/internal/log"
	"myfinances/internal/storage"
)

// PersistKey is the secure store key holding the current token.
const PersistKey = "session.token"

// DefaultLifetime is used when Config.Lifetime is not set.
const DefaultLifetime = 30 * time.Minute

// State describes the token held by a [Manager].
type State int

const (
	NoToken State = iota
	Valid
	Expired
)

func (s State) String() string {
	switch s {
	case NoToken:
		return "no token"
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	BaseURL  string
	Username string
	Password string
	// Lifetime is the assumed validity of a freshly issued token.
	Lifetime time.Duration

	HTTPClient *http.Client
	// Store persists the token. Optional.
	Store  storage.KeyValueStore
	Logger *applog.Logger
	Now    func() time.Time
}

// Manager is safe for concurrent use.
type Manager struct {
	tokenURL string
	username string
	password string
	lifetime time.Duration
	client   *http.Client
	store    storage.KeyValueStore
	logger   *applog.Logger
	now      func() time.Time

	sf singleflight.Group

	mu    sync.Mutex
	token *core.Token
	timer *time.Timer
	gen   uint64 // incremented whenever token changes
}

func New(cfg Config) *Manager {
	m := &Manager{
		tokenURL: strings.TrimRight(cfg.BaseURL, "/") + "/token",
		username: cfg.Username,
		password: cfg.Password,
		lifetime: cfg.Lifetime,
		client:   cfg.HTTPClient,
		store:    cfg.Store,
		logger:   applog.OrDefault(cfg.Logger, applog.ComponentSession),
		now:      cfg.Now,
	}
	if m.lifetime <= 0 {
		m.lifetime = DefaultLifetime
	}
	if m.client == nil {
		m.client = http.DefaultClient
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// ValidToken returns a usable token, logging in when the current one is
// missing or expired. Concurrent calls share a single login.
// A caller whose ctx ends stops waiting, but the shared login continues.
func (m *Manager) ValidToken(ctx context.Context) (core.Token, error) {
	if t, ok := m.current(); ok {
		return t, nil
	}
	ch := m.sf.DoChan("login", func() (any, error) {
		if t, ok := m.current(); ok {
			return t, nil
		}
		return m.Login(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return core.Token{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return core.Token{}, r.Err
		}
		return r.Val.(core.Token), nil
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges the configured credentials for a new token, which replaces
// the current one and is persisted. It never retries.
func (m *Manager) Login(ctx context.Context) (core.Token, error) {
	if m.username == "" || m.password == "" {
		return core.Token{}, &core.AuthError{Op: applog.OpLogin, Err: core.ErrNoCredentials}
	}

	form := url.Values{}
	form.Set("username", m.username)
	form.Set("password", m.password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.Token{}, &core.AuthError{Op: applog.OpLogin, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.WarnContext(ctx, "Login request failed", applog.FieldError, err)
		return core.Token{}, &core.AuthError{Op: applog.OpLogin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		m.logger.WarnContext(ctx, "Login rejected", applog.FieldStatusCode, resp.StatusCode)
		return core.Token{}, &core.AuthError{Op: applog.OpLogin, StatusCode: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return core.Token{}, &core.AuthError{Op: applog.OpLogin, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return core.Token{}, &core.AuthError{Op: applog.OpLogin, StatusCode: resp.StatusCode, Err: errors.New("empty access token")}
	}

	t := core.NewToken(tr.AccessToken, m.now(), m.lifetime)
	m.install(t)
	m.persist(ctx, t)
	m.logger.InfoContext(ctx, "Logged in", applog.FieldExpiresAt, t.ExpiresAt)
	return t, nil
}

// LoadPersisted adopts the persisted token if it is still usable.
// Missing or unreadable data leaves the manager without a token.
func (m *Manager) LoadPersisted(ctx context.Context) {
	if m.store == nil {
		return
	}
	data, err := m.store.Get(ctx, PersistKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.DebugContext(ctx, "Ignoring unreadable persisted token", applog.FieldError, err)
		}
		return
	}
	var t core.Token
	if err := json.Unmarshal(data, &t); err != nil {
		m.logger.DebugContext(ctx, "Ignoring malformed persisted token", applog.FieldError, err)
		return
	}
	if !t.Usable(m.now()) {
		return
	}
	m.install(t)
	m.logger.DebugContext(ctx, "Loaded persisted token", applog.FieldExpiresAt, t.ExpiresAt)
}

// Invalidate drops the current token if it is still accessToken.
// A token obtained in the meantime is kept.
func (m *Manager) Invalidate(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || m.token.AccessToken != accessToken {
		return
	}
	m.clearLocked()
	m.logger.Debug("Token invalidated", applog.FieldOperation, applog.OpInvalidate)
}

// CleanExpired drops an expired token and reports how many were dropped.
func (m *Manager) CleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || m.token.Usable(m.now()) {
		return 0
	}
	m.clearLocked()
	return 1
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.token == nil:
		return NoToken
	case m.token.Usable(m.now()):
		return Valid
	default:
		return Expired
	}
}

// Close stops the expiry timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (m *Manager) current() (core.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || !m.token.Usable(m.now()) {
		return core.Token{}, false
	}
	return *m.token, true
}

// install replaces the token and arms its expiry timer.
func (m *Manager) install(t core.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.token = &t
	m.gen++
	gen := m.gen
	if d := t.Remaining(m.now()); d > 0 {
		m.timer = time.AfterFunc(d, func() { m.expire(gen) })
	}
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.token = nil
	m.timer = nil
	m.logger.Debug("Token expired")
}

func (m *Manager) clearLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.token = nil
	m.gen++
}

func (m *Manager) persist(ctx context.Context, t core.Token) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to encode token", applog.FieldError, err)
		return
	}
	if err := m.store.Set(ctx, PersistKey, data); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist token",
			applog.FieldOperation, applog.OpPersist,
			applog.FieldError, err)
	}
}

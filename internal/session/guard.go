package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Logger is the logging surface the guard needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventKind distinguishes session transitions.
type EventKind int

const (
	// Login means a token became available.
	Login EventKind = iota + 1
	// Logout means the token was removed or expired.
	Logout
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case Login:
		return "login"
	case Logout:
		return "logout"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every session transition.
type Event struct {
	Kind EventKind
	At   time.Time
}

// subscriberBuffer bounds how many transitions a slow subscriber can lag behind.
const subscriberBuffer = 8

// storeTimeout bounds store writes triggered from ClearSession and the expiry timer.
const storeTimeout = 5 * time.Second

// Guard is the panel's session authority.
//
// Thread Safety: all methods are safe for concurrent use.
type Guard struct {
	store  Store
	logger Logger
	now    func() time.Time

	mu          sync.RWMutex
	token       string
	expiry      *time.Timer
	subscribers map[int]chan Event
	nextSubID   int
}

// NewGuard loads any persisted token from store.
func NewGuard(ctx context.Context, store Store) (*Guard, error) {
	g := &Guard{
		store:       store,
		logger:      noopLogger{},
		now:         time.Now,
		subscribers: make(map[int]chan Event),
	}

	token, ok, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		g.token = token
		g.armExpiryLocked()
	}
	return g, nil
}

// SetLogger replaces the guard's logger.
func (g *Guard) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	g.mu.Lock()
	g.logger = logger
	g.mu.Unlock()
}

// IsAuthenticated reports whether a usable token is held. It has no side effects.
func (g *Guard) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.usableLocked()
}

// Token returns the current token if one is usable.
func (g *Guard) Token() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.usableLocked() {
		return "", false
	}
	return g.token, true
}

// ExpiresAt returns the token's exp claim, if it has one.
func (g *Guard) ExpiresAt() (time.Time, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return tokenExpiry(g.token)
}

// SetToken persists token and announces a login. Replacing a different
// usable token announces a Logout first, so subscribers never carry state
// from the previous session into the new one.
func (g *Guard) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := g.store.Save(ctx, token); err != nil {
		return err
	}

	g.mu.Lock()
	replaced := g.token != token && g.usableLocked()
	g.token = token
	g.armExpiryLocked()
	usable := g.usableLocked()
	g.mu.Unlock()

	// A different credential ends the previous session before the new one starts.
	if replaced {
		g.logger.Info("session replaced")
		g.publish(Logout)
	}
	if usable {
		g.logger.Info("session started")
		g.publish(Login)
	} else {
		g.logger.Warn("stored token is already expired")
	}
	return nil
}

// ClearSession removes the token. A Logout event is emitted only if a token
// was held. Store failures are logged; the in-memory session is cleared regardless.
func (g *Guard) ClearSession() {
	g.mu.Lock()
	had := g.token != ""
	g.token = ""
	g.stopExpiryLocked()
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := g.store.Delete(ctx); err != nil {
		g.logger.Error("failed to delete stored token", "error", err)
	}

	if had {
		g.logger.Info("session cleared")
		g.publish(Logout)
	}
}

// ClearToken is ClearSession.
func (g *Guard) ClearToken() {
	g.ClearSession()
}

// Subscribe returns a channel of session transitions and a function that
// unsubscribes and closes it.
func (g *Guard) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	g.mu.Lock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = ch
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subscribers, id)
			g.mu.Unlock()
			close(ch)
		})
	}
}

func (g *Guard) publish(kind EventKind) {
	ev := Event{Kind: kind, At: g.now()}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ch := range g.subscribers {
		select {
		case ch <- ev:
		default:
			g.logger.Warn("session subscriber is full, dropping event", "event", kind.String())
		}
	}
}

func (g *Guard) usableLocked() bool {
	if g.token == "" {
		return false
	}
	exp, ok := tokenExpiry(g.token)
	return !ok || g.now().Before(exp)
}

// armExpiryLocked schedules a Logout for when the held JWT expires.
func (g *Guard) armExpiryLocked() {
	g.stopExpiryLocked()
	exp, ok := tokenExpiry(g.token)
	if !ok {
		return
	}
	wait := exp.Sub(g.now())
	if wait <= 0 {
		return
	}
	token := g.token
	g.expiry = time.AfterFunc(wait, func() { g.expire(token) })
}

func (g *Guard) stopExpiryLocked() {
	if g.expiry != nil {
		g.expiry.Stop()
		g.expiry = nil
	}
}

// expire fires when token's exp passes. A token replaced in the meantime is left alone.
func (g *Guard) expire(token string) {
	g.mu.RLock()
	current := g.token == token
	g.mu.RUnlock()
	if !current {
		return
	}
	g.logger.Info("access token expired")
	g.ClearSession()
}

// tokenExpiry reads the exp claim of a JWT without verifying it.
// Non-JWT tokens and JWTs without exp report ok=false.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

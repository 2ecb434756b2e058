package httpd

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// sessionClaims is the payload of a session credential.
//
// Pool is the server-side session identifier; everything else about the
// session (owner, engine token, expiry) lives in the session table. The
// credential only proves the caller was issued this pool id.
type sessionClaims struct {
	Pool string `json:"pool"`
	jwt.RegisteredClaims
}

// sessionEntry is one live session in the table.
type sessionEntry struct {
	owner       string
	engineToken string
	expires     time.Time
}

// SessionManager issues and verifies session credentials.
//
// A credential is an HS256-signed token carrying a random pool id; the
// matching table entry maps the pool to a tenant and an engine session
// token. Expired entries are reaped lazily on issue. The table is capped:
// when full, the entry closest to expiry is evicted to make room, so a
// flood of logins degrades old sessions instead of refusing new ones.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	max    int

	// now is replaceable by tests
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionManager creates a session manager signing with secret.
func NewSessionManager(secret []byte, ttl time.Duration, maxSessions int) *SessionManager {
	return &SessionManager{
		secret:   secret,
		ttl:      ttl,
		max:      maxSessions,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// newPoolID draws a random 16-byte hex session identifier.
func newPoolID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue registers a session for (owner, engineToken) and returns the pool
// id and its signed credential.
func (m *SessionManager) Issue(owner, engineToken string) (pool, token string, err error) {
	pool, err = newPoolID()
	if err != nil {
		return "", "", err
	}

	m.mu.Lock()
	m.reapLocked()
	if len(m.sessions) >= m.max {
		m.evictOldestLocked()
	}
	expires := m.now().Add(m.ttl)
	m.sessions[pool] = &sessionEntry{
		owner:       owner,
		engineToken: engineToken,
		expires:     expires,
	}
	m.mu.Unlock()

	token, err = m.sign(pool, expires)
	if err != nil {
		return "", "", err
	}
	return pool, token, nil
}

// sign produces a credential for pool expiring at expires.
func (m *SessionManager) sign(pool string, expires time.Time) (string, error) {
	claims := sessionClaims{
		Pool: pool,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Lookup verifies a credential against pool and resolves its session.
//
// Verification failures map to InvalidToken, a verified-but-expired
// credential to Expired, and a credential whose pool is no longer in the
// table (logged out, evicted, or mismatched) to InvalidToken as well.
func (m *SessionManager) Lookup(pool, token string) (owner, engineToken string, err error) {
	claims, err := m.verify(token)
	if err != nil {
		return "", "", err
	}
	if claims.Pool != pool {
		return "", "", &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid session."}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[pool]
	if !ok {
		return "", "", &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid session."}
	}
	if m.now().After(entry.expires) {
		delete(m.sessions, pool)
		return "", "", &vfs.StoreError{Code: vfs.ErrExpired, Message: "Session expired."}
	}
	return entry.owner, entry.engineToken, nil
}

// Renew extends a live session by the full TTL and re-signs its
// credential with the new expiry. The old credential stays valid until
// its original expiry; the table entry tracks the renewed horizon.
func (m *SessionManager) Renew(pool string) (string, error) {
	m.mu.Lock()
	entry, ok := m.sessions[pool]
	if !ok {
		m.mu.Unlock()
		return "", &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid session."}
	}
	expires := m.now().Add(m.ttl)
	entry.expires = expires
	m.mu.Unlock()

	return m.sign(pool, expires)
}

// Logout removes the session. Removal is idempotent.
func (m *SessionManager) Logout(pool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, pool)
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// verify parses and validates the credential's signature and expiry.
func (m *SessionManager) verify(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &vfs.StoreError{Code: vfs.ErrExpired, Message: "Session expired."}
		}
		return nil, &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid session."}
	}
	return claims, nil
}

// reapLocked drops expired entries. Callers hold the lock.
func (m *SessionManager) reapLocked() {
	now := m.now()
	for pool, entry := range m.sessions {
		if now.After(entry.expires) {
			delete(m.sessions, pool)
		}
	}
}

// evictOldestLocked removes the entry closest to expiry. Callers hold the
// lock.
func (m *SessionManager) evictOldestLocked() {
	var oldestPool string
	var oldest time.Time
	for pool, entry := range m.sessions {
		if oldestPool == "" || entry.expires.Before(oldest) {
			oldestPool = pool
			oldest = entry.expires
		}
	}
	if oldestPool != "" {
		delete(m.sessions, oldestPool)
	}
}

// Package session provides the identity capability used by every data
// operation: an anonymous user id carried in a signed token kept in the OS
// keyring, and the unrestricted service identity used by background jobs.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/keyring"
	"github.com/julianstephens/habitlog/internal/logger"
)

var (
	ErrNoSession    = errors.New("not signed in, run 'habitlog session login'")
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

type claims struct {
	jwt.RegisteredClaims
}

// Identity is a signed-in user.
type Identity struct {
	id        string
	expiresAt time.Time
}

func (i *Identity) UserID() string       { return i.id }
func (i *Identity) IsService() bool      { return false }
func (i *Identity) ExpiresAt() time.Time { return i.expiresAt }

type serviceIdentity struct{}

func (serviceIdentity) UserID() string  { return "" }
func (serviceIdentity) IsService() bool { return true }

// Service returns the identity used by the backfill job and the daemon. It is
// not scoped to a user.
func Service() gateway.Identity { return serviceIdentity{} }

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// NewManager returns a Manager signing with secret. An empty secret is read
// from the keyring, and generated and stored there on first use.
func NewManager(secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		var err error
		secret, err = loadSecret()
		if err != nil {
			return nil, err
		}
	}

	m := &Manager{
		secret: []byte(secret),
		ttl:    constants.SessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func loadSecret() (string, error) {
	secret, err := keyring.GetSigningSecret()
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("failed to read signing secret: %w", err)
	}

	secret = rand.Text()
	if err := keyring.SetSigningSecret(secret); err != nil {
		return "", err
	}
	logger.Info("generated session signing secret")
	return secret, nil
}

// Issue signs a token for userID.
func (m *Manager) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id cannot be empty")
	}
	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    constants.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

// Verify parses token and returns the identity it carries.
func (m *Manager) Verify(token string) (*Identity, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(constants.SessionIssuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(c.Subject); err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return &Identity{id: c.Subject, expiresAt: c.ExpiresAt.Time}, nil
}

// SignIn creates an anonymous user and stores its token in the keyring.
func (m *Manager) SignIn() (*Identity, error) {
	userID := uuid.NewString()
	token, err := m.Issue(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	if err := keyring.SetSessionToken(token); err != nil {
		return nil, err
	}
	logger.Info("signed in", "user", userID)
	return &Identity{id: userID, expiresAt: m.now().Add(m.ttl)}, nil
}

// Current returns the identity of the stored token.
func (m *Manager) Current() (*Identity, error) {
	token, err := keyring.GetSessionToken()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return m.Verify(token)
}

// CurrentOrSignIn returns the stored identity, signing in anonymously when
// there is none or the stored token has expired.
func (m *Manager) CurrentOrSignIn() (*Identity, error) {
	id, err := m.Current()
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrTokenExpired):
		return m.SignIn()
	default:
		return nil, err
	}
}

func (m *Manager) SignOut() error {
	if err := keyring.DeleteSessionToken(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNoSession
		}
		return err
	}
	return nil
}

package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/habitlog/internal/keyring"
)

var epoch = time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	gokeyring.MockInit()
	m, err := NewManager("test-secret", append([]Option{WithClock(func() time.Time { return epoch })}, opts...)...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestSignInAndCurrent(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Current(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Current() before sign in error = %v, want ErrNoSession", err)
	}

	id, err := m.SignIn()
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if id.UserID() == "" || id.IsService() {
		t.Fatalf("SignIn() identity = %+v", id)
	}

	current, err := m.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.UserID() != id.UserID() {
		t.Errorf("Current() user = %s, want %s", current.UserID(), id.UserID())
	}
	if !current.ExpiresAt().Equal(epoch.Add(365 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt() = %v", current.ExpiresAt())
	}
}

func TestSignOut(t *testing.T) {
	m := newTestManager(t)

	if err := m.SignOut(); !errors.Is(err, ErrNoSession) {
		t.Errorf("SignOut() without session error = %v, want ErrNoSession", err)
	}
	if _, err := m.SignIn(); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if err := m.SignOut(); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, err := m.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() after sign out error = %v, want ErrNoSession", err)
	}
}

func TestVerify(t *testing.T) {
	m := newTestManager(t)
	const user = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	token, err := m.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	t.Run("valid", func(t *testing.T) {
		id, err := m.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if id.UserID() != user {
			t.Errorf("UserID() = %s, want %s", id.UserID(), user)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewManager("other-secret", WithClock(func() time.Time { return epoch }))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		later, err := NewManager("test-secret", WithClock(func() time.Time { return epoch.Add(400 * 24 * time.Hour) }))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := later.Verify(token); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		if _, err := m.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("non uuid subject", func(t *testing.T) {
		bad, err := m.Issue("not-a-uuid")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("other algorithm", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: user}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Verify(none); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})
}

func TestCurrentOrSignInReplacesExpiredToken(t *testing.T) {
	m := newTestManager(t, WithTTL(time.Hour))
	first, err := m.SignIn()
	if err != nil {
		t.Fatal(err)
	}

	later, err := NewManager("test-secret", WithClock(func() time.Time { return epoch.Add(2 * time.Hour) }))
	if err != nil {
		t.Fatal(err)
	}
	id, err := later.CurrentOrSignIn()
	if err != nil {
		t.Fatalf("CurrentOrSignIn() error = %v", err)
	}
	if id.UserID() == first.UserID() {
		t.Error("expired session was reused")
	}
}

func TestNewManagerGeneratesSecret(t *testing.T) {
	gokeyring.MockInit()

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	stored, err := keyring.GetSigningSecret()
	if err != nil {
		t.Fatalf("GetSigningSecret() error = %v", err)
	}
	if stored != string(m.secret) || strings.TrimSpace(stored) == "" {
		t.Errorf("stored secret %q does not match manager secret", stored)
	}

	again, err := NewManager("")
	if err != nil {
		t.Fatal(err)
	}
	if string(again.secret) != stored {
		t.Error("second manager generated a new secret")
	}
}

func TestService(t *testing.T) {
	s := Service()
	if !s.IsService() || s.UserID() != "" {
		t.Errorf("Service() = %+v", s)
	}
}

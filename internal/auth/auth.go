// Package auth provides email/password login with signed session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"findash/internal/storage"
)

// ErrInvalidCredentials covers both unknown email and wrong password.
// Callers must not be able to tell which part of the credential failed.
var ErrInvalidCredentials = errors.New("invalid email or password")

// dummyHash is a well-formed bcrypt digest (of an arbitrary throwaway
// password, cost 10) compared against on the unknown-email path, so that
// path costs one real bcrypt comparison like the wrong-password path.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type (
	// Session is a logged-in state handed to the client.
	Session struct {
		UserID    string
		Email     string
		Token     string
		ExpiresAt time.Time
	}

	// UserStore is the persistence the provider needs.
	UserStore interface {
		CreateUser(ctx context.Context, email, passwordHash string) (storage.User, error)
		GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	}

	// Provider is the auth collaborator the HTTP layer is wired with.
	Provider interface {
		Login(ctx context.Context, email, password string) (Session, error)
		Verify(token string) (Session, error)
	}

	claims struct {
		Email string `json:"email"`
		jwt.RegisteredClaims
	}

	Service struct {
		users  UserStore
		secret []byte
		ttl    time.Duration
	}
)

var _ Provider = (*Service)(nil)

func NewService(users UserStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{users: users, secret: []byte(secret), ttl: ttl}
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, email, password string) (storage.User, error) {
	if email == "" || len(password) < 8 {
		return storage.User{}, errors.New("email required and password must have at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return storage.User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.users.CreateUser(ctx, email, string(hash))
}

// Login checks the credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a comparison anyway so unknown emails cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Session{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := time.Now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}

	return Session{UserID: user.ID, Email: user.Email, Token: signed, ExpiresAt: expires}, nil
}

// Verify parses and validates a session token.
func (s *Service) Verify(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("parse token: %w", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Session{}, errors.New("invalid token")
	}

	sess := Session{UserID: c.Subject, Email: c.Email, Token: tokenStr}
	if c.ExpiresAt != nil {
		sess.ExpiresAt = c.ExpiresAt.Time
	}
	return sess, nil
}

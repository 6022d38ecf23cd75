package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("auth secret is empty")
	ErrInvalidToken  = errors.New("invalid token")
)

const issuer = "tradegate"

// Claims identify the calling service.
type Claims struct {
	Service string `json:"service"`

	jwt.RegisteredClaims
}

type JWT struct {
	Secret   []byte
	TokenTTL time.Duration
}

func New(secret string, ttl time.Duration) (JWT, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return JWT{}, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return JWT{Secret: []byte(secret), TokenTTL: ttl}, nil
}

func (j JWT) Sign(service string) (token string, expiresAt time.Time, err error) {
	if len(j.Secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	now := time.Now().UTC()
	expiresAt = now.Add(j.TokenTTL)
	claims := Claims{
		Service: strings.TrimSpace(service),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strings.TrimSpace(service),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, expiresAt, nil
}

func (j JWT) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.Secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Service) == "" {
		return Claims{}, ErrInvalidToken
	}
	return *c, nil
}

// TokenSource mints tokens for one service identity and reuses each until
// shortly before it expires.
type TokenSource struct {
	JWT     JWT
	Service string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && time.Until(s.expiresAt) > 30*time.Second {
		return s.token, nil
	}
	tok, exp, err := s.JWT.Sign(s.Service)
	if err != nil {
		return "", err
	}
	s.token = tok
	s.expiresAt = exp
	return tok, nil
}

package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	LocalIssuer     = "financeira-functions-local"
	defaultLocalTTL = time.Hour
)

// LocalTokens issues and verifies HS256 tokens for the local server, standing
// in for Firebase ID tokens when no Auth emulator is available.
type LocalTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type LocalOption func(*LocalTokens)

func WithTTL(ttl time.Duration) LocalOption {
	return func(l *LocalTokens) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithNow(now func() time.Time) LocalOption {
	return func(l *LocalTokens) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLocalTokens(secret string, opts ...LocalOption) (*LocalTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("local token secret is required")
	}
	l := &LocalTokens{secret: []byte(secret), ttl: defaultLocalTTL, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Mint signs a token for uid carrying claims alongside the registered ones.
func (l *LocalTokens) Mint(uid string, claims map[string]any) (string, error) {
	if strings.TrimSpace(uid) == "" {
		return "", fmt.Errorf("uid is required")
	}
	now := l.now()
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iss"] = LocalIssuer
	mc["sub"] = uid
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(l.ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("sign local token: %w", err)
	}
	return signed, nil
}

func (l *LocalTokens) Verify(_ context.Context, token string) (*Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(*jwt.Token) (any, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(LocalIssuer),
		jwt.WithTimeFunc(l.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Join(ErrInvalidToken, errors.New("unexpected claims type"))
	}
	uid, err := mc.GetSubject()
	if err != nil || uid == "" {
		return nil, errors.Join(ErrInvalidToken, errors.New("token has no subject"))
	}
	claims := make(map[string]any, len(mc))
	for k, v := range mc {
		claims[k] = v
	}
	return &Principal{UID: uid, Claims: claims}, nil
}

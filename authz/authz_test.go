package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/google/go-cmp/cmp"

	"github.com/PipeOpsHQ/financeira-functions/store/memory"
)

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name string
		p    *Principal
		want bool
	}{
		{name: "nil principal", p: nil, want: false},
		{name: "no claims", p: &Principal{UID: "u"}, want: false},
		{name: "role admin", p: &Principal{UID: "u", Claims: map[string]any{"role": "admin"}}, want: true},
		{name: "admin flag", p: &Principal{UID: "u", Claims: map[string]any{"admin": true}}, want: true},
		{name: "role user", p: &Principal{UID: "u", Claims: map[string]any{"role": "user", "admin": false}}, want: false},
		{name: "admin flag as string", p: &Principal{UID: "u", Claims: map[string]any{"admin": "true"}}, want: false},
		{name: "role case sensitive", p: &Principal{UID: "u", Claims: map[string]any{"role": "Admin"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAdmin(tt.p); got != tt.want {
				t.Fatalf("IsAdmin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaimsFor(t *testing.T) {
	if diff := cmp.Diff(map[string]any{"role": "admin", "admin": true}, ClaimsFor("admin")); diff != "" {
		t.Fatalf("unexpected admin claims (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"role": "x", "admin": false}, ClaimsFor("x")); diff != "" {
		t.Fatalf("unexpected claims (-want +got):\n%s", diff)
	}
}

type fakeIDTokens struct {
	token *auth.Token
	err   error
}

func (f fakeIDTokens) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	return f.token, f.err
}

func TestFirebaseVerifier(t *testing.T) {
	v := NewFirebaseVerifier(fakeIDTokens{token: &auth.Token{UID: "u1", Claims: map[string]interface{}{"role": "admin"}}})
	p, err := v.Verify(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if p.UID != "u1" || !IsAdmin(p) {
		t.Fatalf("unexpected principal: %#v", p)
	}

	errExpired := errors.New("ID token has expired")
	v = NewFirebaseVerifier(fakeIDTokens{err: errExpired})
	v.rejected = func(err error) bool { return errors.Is(err, errExpired) }
	if _, err := v.Verify(context.Background(), "id-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestFirebaseVerifierOutageIsNotInvalidToken(t *testing.T) {
	outage := errors.New("fetch public keys: dial tcp: connection refused")
	v := NewFirebaseVerifier(fakeIDTokens{err: outage})
	_, err := v.Verify(context.Background(), "id-token")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatalf("key fetch failure must not be reported as an invalid token: %v", err)
	}
	if !errors.Is(err, outage) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestLocalTokensRoundTrip(t *testing.T) {
	tokens, err := NewLocalTokens("secret")
	if err != nil {
		t.Fatalf("NewLocalTokens failed: %v", err)
	}
	signed, err := tokens.Mint("u1", ClaimsFor("admin"))
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	p, err := tokens.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if p.UID != "u1" {
		t.Fatalf("unexpected uid: %q", p.UID)
	}
	if !IsAdmin(p) {
		t.Fatalf("expected admin principal, claims %#v", p.Claims)
	}
}

func TestLocalTokensRejects(t *testing.T) {
	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	issuer, _ := NewLocalTokens("secret", WithNow(func() time.Time { return now }), WithTTL(time.Minute))
	signed, err := issuer.Mint("u1", nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	other, _ := NewLocalTokens("other-secret", WithNow(func() time.Time { return now }))
	if _, err := other.Verify(context.Background(), signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature rejection, got %v", err)
	}

	later, _ := NewLocalTokens("secret", WithNow(func() time.Time { return now.Add(2 * time.Minute) }))
	if _, err := later.Verify(context.Background(), signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}

	if _, err := issuer.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed rejection, got %v", err)
	}
}

func TestNewLocalTokensRequiresSecret(t *testing.T) {
	if _, err := NewLocalTokens(" "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestStoreClaimsReplaces(t *testing.T) {
	claims := NewStoreClaims(memory.New())
	ctx := context.Background()

	got, err := claims.CustomUserClaims(ctx, "u1")
	if err != nil {
		t.Fatalf("CustomUserClaims failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no claims, got %#v", got)
	}

	if err := claims.SetCustomUserClaims(ctx, "u1", map[string]any{"role": "editor", "tier": "gold"}); err != nil {
		t.Fatalf("SetCustomUserClaims failed: %v", err)
	}
	if err := claims.SetCustomUserClaims(ctx, "u1", ClaimsFor("admin")); err != nil {
		t.Fatalf("SetCustomUserClaims failed: %v", err)
	}
	got, err = claims.CustomUserClaims(ctx, "u1")
	if err != nil {
		t.Fatalf("CustomUserClaims failed: %v", err)
	}
	if diff := cmp.Diff(ClaimsFor("admin"), got); diff != "" {
		t.Fatalf("claims were merged instead of replaced (-want +got):\n%s", diff)
	}
}

package authz

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
)

// IDTokenVerifier is the part of *auth.Client used to check ID tokens.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier verifies Firebase Auth ID tokens.
type FirebaseVerifier struct {
	client IDTokenVerifier
	// rejected reports whether a verification error is about the token
	// itself rather than the verifier being unable to check it.
	rejected func(error) bool
}

func NewFirebaseVerifier(client IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, rejected: tokenRejected}
}

func tokenRejected(err error) bool {
	return auth.IsIDTokenInvalid(err) ||
		auth.IsIDTokenExpired(err) ||
		auth.IsIDTokenRevoked(err) ||
		auth.IsUserDisabled(err)
}

// Verify returns ErrInvalidToken for tokens Firebase rejects. Other
// failures, such as fetching the signing keys, are returned as is.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	tok, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		if v.rejected(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	claims := make(map[string]any, len(tok.Claims))
	for k, val := range tok.Claims {
		claims[k] = val
	}
	return &Principal{UID: tok.UID, Claims: claims}, nil
}

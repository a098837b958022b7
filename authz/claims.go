package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

// ClaimsCollection holds custom claims when the local server stands in for
// Firebase Auth.
const ClaimsCollection = "_claims"

// StoreClaims keeps custom claims in a document store, replacing the whole
// claim set on every write like Firebase Auth does.
type StoreClaims struct {
	store store.Store
}

func NewStoreClaims(s store.Store) *StoreClaims {
	return &StoreClaims{store: s}
}

func (c *StoreClaims) SetCustomUserClaims(ctx context.Context, uid string, claims map[string]any) error {
	if err := c.store.Set(ctx, ClaimsCollection, uid, claims); err != nil {
		return fmt.Errorf("set custom claims for %s: %w", uid, err)
	}
	return nil
}

// CustomUserClaims returns the claims last set for uid, or an empty set.
func (c *StoreClaims) CustomUserClaims(ctx context.Context, uid string) (map[string]any, error) {
	claims, err := c.store.Get(ctx, ClaimsCollection, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("get custom claims for %s: %w", uid, err)
	}
	return claims, nil
}

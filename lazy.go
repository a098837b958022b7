package financeira

import (
	"context"

	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/authz"
	"github.com/PipeOpsHQ/financeira-functions/store"
)

// The adapters below resolve platform clients per call so construction
// stays free of network access.

type verifier struct{ d *deployment }

func (v verifier) Verify(ctx context.Context, token string) (*authz.Principal, error) {
	clients, err := v.d.platform.Clients(ctx)
	if err != nil {
		return nil, err
	}
	return authz.NewFirebaseVerifier(clients.Auth).Verify(ctx, token)
}

type claimsSetter struct{ d *deployment }

func (c claimsSetter) SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	clients, err := c.d.platform.Clients(ctx)
	if err != nil {
		return err
	}
	return clients.Auth.SetCustomUserClaims(ctx, uid, claims)
}

type recorder struct{ d *deployment }

func (r recorder) Record(ctx context.Context, entry audit.Entry) (string, error) {
	s, err := r.d.documents(ctx)
	if err != nil {
		return "", err
	}
	return audit.NewLog(s).Record(ctx, entry)
}

type storeProxy struct{ d *deployment }

func (p storeProxy) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	s, err := p.d.documents(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, collection, id)
}

func (p storeProxy) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	s, err := p.d.documents(ctx)
	if err != nil {
		return err
	}
	return s.Set(ctx, collection, id, fields)
}

func (p storeProxy) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	s, err := p.d.documents(ctx)
	if err != nil {
		return err
	}
	return s.Merge(ctx, collection, id, fields)
}

func (p storeProxy) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	s, err := p.d.documents(ctx)
	if err != nil {
		return "", err
	}
	return s.Add(ctx, collection, fields)
}

func (p storeProxy) List(ctx context.Context, collection string, query store.ListQuery) ([]store.Document, error) {
	s, err := p.d.documents(ctx)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, collection, query)
}

// Close is a no-op; the store lives as long as the process.
func (p storeProxy) Close() error { return nil }

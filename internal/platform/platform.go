// Package platform holds the process-wide Firebase app and the clients made
// from it.
package platform

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/PipeOpsHQ/financeira-functions/internal/config"
)

type Clients struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client
}

// InitFunc creates the clients. It is called until it first succeeds.
type InitFunc func(ctx context.Context) (*Clients, error)

// Platform lazily creates Clients once. Concurrent callers share the first
// successful result; a failed attempt leaves the next caller to retry.
type Platform struct {
	mu      sync.Mutex
	init    InitFunc
	clients *Clients
}

func New(init InitFunc) *Platform {
	return &Platform{init: init}
}

func (p *Platform) Clients(ctx context.Context) (*Clients, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients != nil {
		return p.clients, nil
	}
	c, err := p.init(ctx)
	if err != nil {
		return nil, err
	}
	p.clients = c
	return c, nil
}

// Close releases the Firestore client if one was created.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients == nil || p.clients.Firestore == nil {
		return nil
	}
	err := p.clients.Firestore.Close()
	p.clients = nil
	return err
}

// Firebase initializes the app from cfg with application default
// credentials, or opts when given.
func Firebase(cfg config.Config, opts ...option.ClientOption) InitFunc {
	return func(ctx context.Context) (*Clients, error) {
		fbConf := &firebase.Config{ProjectID: cfg.ProjectID()}
		if settings, err := cfg.Firebase(); err == nil {
			fbConf.StorageBucket = settings.StorageBucket
			fbConf.DatabaseURL = settings.DatabaseURL
		}
		app, err := firebase.NewApp(ctx, fbConf, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialize firebase app: %w", err)
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize firebase auth: %w", err)
		}
		fsClient, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize firestore: %w", err)
		}
		return &Clients{App: app, Auth: authClient, Firestore: fsClient}, nil
	}
}

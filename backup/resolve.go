package backup

import (
	"context"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/compute/metadata"

	"github.com/PipeOpsHQ/financeira-functions/internal/config"
)

// Resolver finds the project and bucket an export targets. The environment
// wins; the metadata server and the default credentials are consulted only
// for the project id.
type Resolver struct {
	Config config.Config
	// OnGCE reports whether the metadata server is reachable.
	OnGCE func(ctx context.Context) bool
	// MetadataProjectID reads the project id from the metadata server.
	MetadataProjectID func(ctx context.Context) (string, error)
	// CredentialsProjectID reads the project id attached to the default
	// credentials.
	CredentialsProjectID func(ctx context.Context) (string, error)
}

// NewResolver returns a Resolver backed by the real metadata server and
// application default credentials.
func NewResolver(cfg config.Config) *Resolver {
	return &Resolver{
		Config:               cfg,
		OnGCE:                metadata.OnGCEWithContext,
		MetadataProjectID:    metadata.ProjectIDWithContext,
		CredentialsProjectID: defaultCredentialsProjectID,
	}
}

func (r *Resolver) ProjectID(ctx context.Context) string {
	if id := r.Config.ProjectID(); id != "" {
		return id
	}
	if r.OnGCE != nil && r.MetadataProjectID != nil && r.OnGCE(ctx) {
		id, err := r.MetadataProjectID(ctx)
		if err == nil && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
		if err != nil {
			slog.DebugContext(ctx, "backup: metadata project id unavailable", slog.Any("error", err))
		}
	}
	if r.CredentialsProjectID != nil {
		id, err := r.CredentialsProjectID(ctx)
		if err == nil {
			return strings.TrimSpace(id)
		}
		slog.DebugContext(ctx, "backup: credentials project id unavailable", slog.Any("error", err))
	}
	return ""
}

func (r *Resolver) Bucket(context.Context) string {
	return r.Config.Bucket()
}

func defaultCredentialsProjectID(ctx context.Context) (string, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{Scopes: Scopes})
	if err != nil {
		return "", err
	}
	return creds.ProjectID(ctx)
}

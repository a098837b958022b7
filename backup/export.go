package backup

import (
	"context"
	"fmt"

	"cloud.google.com/go/auth/credentials"
	firestoreapi "google.golang.org/api/firestore/v1"
	"google.golang.org/api/option"
)

// Scopes are the OAuth scopes the export call is made with.
var Scopes = []string{
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Exporter starts a managed export of database into outputURIPrefix and
// returns the name of the long-running operation.
type Exporter interface {
	ExportDocuments(ctx context.Context, database, outputURIPrefix string) (string, error)
}

// APIExporter calls the Firestore Admin REST API.
type APIExporter struct {
	opts []option.ClientOption
}

// NewAPIExporter returns an exporter using opts for every call. With no
// options it authenticates with the default credentials and Scopes.
func NewAPIExporter(opts ...option.ClientOption) *APIExporter {
	return &APIExporter{opts: opts}
}

func (e *APIExporter) ExportDocuments(ctx context.Context, database, outputURIPrefix string) (string, error) {
	opts := e.opts
	if len(opts) == 0 {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{Scopes: Scopes})
		if err != nil {
			return "", fmt.Errorf("detect credentials: %w", err)
		}
		opts = []option.ClientOption{option.WithAuthCredentials(creds)}
	}
	svc, err := firestoreapi.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create firestore admin client: %w", err)
	}
	op, err := svc.Projects.Databases.ExportDocuments(database, &firestoreapi.GoogleFirestoreAdminV1ExportDocumentsRequest{
		OutputUriPrefix: outputURIPrefix,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("export documents: %w", err)
	}
	return op.Name, nil
}

package factory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PipeOpsHQ/financeira-functions/internal/config"
	"github.com/PipeOpsHQ/financeira-functions/store/memory"
	sqlitestore "github.com/PipeOpsHQ/financeira-functions/store/sqlite"
)

func TestFromConfig_SQLite(t *testing.T) {
	cfg := config.Config{
		StoreBackend: BackendSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "store.db"),
	}
	s, err := FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
}

func TestFromConfig_Memory(t *testing.T) {
	s, err := FromConfig(context.Background(), config.Config{StoreBackend: BackendMemory})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestFromConfig_Unsupported(t *testing.T) {
	_, err := FromConfig(context.Background(), config.Config{StoreBackend: "mongo"})
	if err == nil {
		t.Fatal("expected error for unsupported backend")
	}
	if !strings.Contains(err.Error(), "unsupported FUNCTIONS_STORE_BACKEND") {
		t.Fatalf("unexpected error: %v", err)
	}
}

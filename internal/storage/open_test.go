package storage

import (
	"context"
	"strings"
	"testing"

	"tryon/internal/infra"
)

func TestOpenFilesystem(t *testing.T) {
	cfg := &infra.Config{StorageDriver: "filesystem", StoragePath: t.TempDir(), StorageBaseURL: "http://localhost:8080/static"}
	store, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("store = %T, want *FileStore", store)
	}
	if got := store.URL("u1/images/a.png"); got != "http://localhost:8080/static/u1/images/a.png" {
		t.Fatalf("URL = %q", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &infra.Config{StorageDriver: "s4"})
	if err == nil || !strings.Contains(err.Error(), "s4") {
		t.Fatalf("err = %v, want unsupported driver", err)
	}
}

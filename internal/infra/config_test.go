package infra

import "testing"

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
	if cfg.StorageDriver != "filesystem" {
		t.Fatalf("StorageDriver = %q, want filesystem", cfg.StorageDriver)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when JWT_SECRET is missing")
	}
}

func TestLoadConfigMinioRequiresEndpoint(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "MINIO")
	t.Setenv("MINIO_ENDPOINT", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without MINIO_ENDPOINT")
	}

	t.Setenv("MINIO_ENDPOINT", "minio.local:9000")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageDriver != "minio" {
		t.Fatalf("StorageDriver = %q, want minio", cfg.StorageDriver)
	}
}

func TestLoadConfigMergesUnlimitedEmails(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("UNLIMITED_EMAILS", " Owner@Example.com , ops@tryon.studio,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"ops@tryon.studio", "owner@example.com"}
	if len(cfg.UnlimitedEmails) != len(expected) {
		t.Fatalf("UnlimitedEmails mismatch: got %#v want %#v", cfg.UnlimitedEmails, expected)
	}
	for i, email := range expected {
		if cfg.UnlimitedEmails[i] != email {
			t.Fatalf("UnlimitedEmails[%d] = %q, want %q", i, cfg.UnlimitedEmails[i], email)
		}
	}
	if !cfg.IsUnlimited("OWNER@example.COM") {
		t.Fatalf("expected case-insensitive match for owner@example.com")
	}
	if cfg.IsUnlimited("owner@example.co") {
		t.Fatalf("partial email must not match")
	}
	if cfg.IsUnlimited("") {
		t.Fatalf("empty email must not match")
	}
}

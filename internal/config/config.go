package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	DefaultDBPath  = "couchview.db"
	DefaultBackend = BackendBolt

	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// DBPath returns the database path from COUCHVIEW_DB env var,
// falling back to DefaultDBPath.
func DBPath() string {
	if env := os.Getenv("COUCHVIEW_DB"); env != "" {
		return env
	}
	return DefaultDBPath
}

// Backend returns the storage backend from COUCHVIEW_BACKEND env var,
// falling back to DefaultBackend.
func Backend() string {
	if env := os.Getenv("COUCHVIEW_BACKEND"); env != "" {
		return strings.ToLower(env)
	}
	return DefaultBackend
}

// ValidateBackend checks that name is a supported backend.
func ValidateBackend(name string) error {
	switch name {
	case BackendBolt, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", name, BackendBolt, BackendSQLite)
	}
}

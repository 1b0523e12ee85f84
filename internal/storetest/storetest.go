// Package storetest provides a real, migrated in-memory gateway for
// package tests, following the teacher's testutil-package convention
// (infrastructure/testutil.NewHTTPTestServer) of keeping test scaffolding
// out of _test.go files so every package under internal/ can import it.
package storetest

import (
	"context"
	"testing"

	"github.com/irisett-go/irisett/internal/config"
	"github.com/irisett-go/irisett/internal/store"
)

// NewGateway opens a fresh in-memory sqlite-backed Gateway with every
// migration applied, and registers a cleanup to close it. Each call gets
// its own isolated database.
func NewGateway(t *testing.T) store.Gateway {
	t.Helper()

	ctx := context.Background()
	gw, err := store.Open(ctx, config.DatabaseConfig{Driver: "embedded-file", Location: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test gateway: %v", err)
	}
	t.Cleanup(func() { gw.Close() })

	if err := store.Migrate(ctx, gw); err != nil {
		t.Fatalf("failed to migrate test gateway: %v", err)
	}
	return gw
}

package utils

import (
	"context"
	"testing"
	"time"
)

func TestLockReleaseScriptCompiles(t *testing.T) {
	if lockReleaseScript == nil {
		t.Fatalf("expected release script to be initialized")
	}
}

func TestAcquireLock_InputValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireLock(ctx, nil, "k", "t", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseLock(ctx, nil, "k", "t"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

//go:build integration

package integration

import (
	"context"
	"os/exec"
	"testing"
)

// restartCatalogContainer bounces the compose service named by
// E2E_CATALOG_SERVICE (default "catalog").
func restartCatalogContainer(t *testing.T, ctx context.Context) {
	t.Helper()

	service := getenv("E2E_CATALOG_SERVICE", "catalog")
	cmd := exec.CommandContext(ctx, "docker", "compose", "restart", service)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("docker compose restart %s failed: %v\n%s", service, err, string(out))
	}
}

//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewRethink starts RethinkDB and returns its driver address.
func NewRethink(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rethinkdb:2.4",
			ExposedPorts: []string{"28015/tcp"},
			WaitingFor:   wait.ForListeningPort("28015/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start rethinkdb container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	addr, err := container.PortEndpoint(ctx, "28015/tcp", "")
	if err != nil {
		t.Fatalf("failed to get rethinkdb endpoint: %v", err)
	}
	return addr
}

//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/faceerr"
)

func setupMinIO(t *testing.T) config.MinIOConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		t.Fatalf("container endpoint: %v", err)
	}
	return config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "eventface-test",
	}
}

func TestMinIOStore(t *testing.T) {
	cfg := setupMinIO(t)
	ctx := context.Background()

	s, err := NewMinIOStore(cfg)
	if err != nil {
		t.Fatalf("NewMinIOStore: %v", err)
	}
	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	t.Run("delete prefix keeps other events", func(t *testing.T) {
		ev, other, batch := uuid.New(), uuid.New(), uuid.New()
		for i := 0; i < 5; i++ {
			if err := s.PutObject(ctx, BatchItemKey(ev, batch, i, "a.jpg"), []byte("img"), "image/jpeg"); err != nil {
				t.Fatalf("PutObject: %v", err)
			}
		}
		keep := BatchItemKey(other, batch, 0, "b.jpg")
		if err := s.PutObject(ctx, keep, []byte("keep"), "image/jpeg"); err != nil {
			t.Fatalf("PutObject: %v", err)
		}

		if err := s.DeletePrefix(ctx, EventPrefix(ev)); err != nil {
			t.Fatalf("DeletePrefix: %v", err)
		}
		if _, err := s.GetObject(ctx, BatchItemKey(ev, batch, 0, "a.jpg")); !faceerr.IsReference(err) {
			t.Errorf("deleted object: got %v, want reference error", err)
		}
		if data, err := s.GetObject(ctx, keep); err != nil || string(data) != "keep" {
			t.Errorf("other event object: %q, %v", data, err)
		}
	})

	t.Run("listing failure is reported", func(t *testing.T) {
		missing := *s
		missing.bucket = "no-such-bucket"

		err := missing.DeletePrefix(ctx, EventPrefix(uuid.New()))
		if !faceerr.IsStorage(err) {
			t.Errorf("DeletePrefix on missing bucket: got %v, want storage error", err)
		}
	})
}

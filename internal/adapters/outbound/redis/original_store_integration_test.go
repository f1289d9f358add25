//go:build integration

package redis

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container and returns a connected store.
func setupRedis(t *testing.T, ttl time.Duration) (*OriginalPriceStore, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	store, err := NewOriginalPriceStore(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:       ttl,
		KeyPrefix: "test",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := store.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}
	return store, cleanup
}

func TestIntegration_PutIfAbsentKeepsFirst(t *testing.T) {
	store, cleanup := setupRedis(t, 0)
	defer cleanup()
	ctx := context.Background()

	key := "fork:0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2:0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	original, _ := new(big.Int).SetString("-123456789012345678901234567890", 10)

	stored, err := store.PutIfAbsent(ctx, key, original)
	if err != nil || !stored {
		t.Fatalf("first put = %v, %v", stored, err)
	}
	stored, err = store.PutIfAbsent(ctx, key, big.NewInt(1))
	if err != nil || stored {
		t.Fatalf("second put = %v, %v", stored, err)
	}

	got, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}
	if got.Cmp(original) != 0 {
		t.Errorf("Get = %s, want %s", got, original)
	}
}

func TestIntegration_GetMissing(t *testing.T) {
	store, cleanup := setupRedis(t, 0)
	defer cleanup()

	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected missing key to report ok=false")
	}
}

func TestIntegration_Delete(t *testing.T) {
	store, cleanup := setupRedis(t, 0)
	defer cleanup()
	ctx := context.Background()

	_, _ = store.PutIfAbsent(ctx, "k", big.NewInt(7))
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("entry still present after Delete")
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestIntegration_TTLExpires(t *testing.T) {
	store, cleanup := setupRedis(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	_, _ = store.PutIfAbsent(ctx, "k", big.NewInt(7))
	time.Sleep(1500 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}

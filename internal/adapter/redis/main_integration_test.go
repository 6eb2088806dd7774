package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// testRedisURL points at a throwaway Redis shared by the cart, catalog cache
// and order feed integration tests.
var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Exit(runWithContainer(m))
}

func runWithContainer(m *testing.M) int {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine", tcredis.WithLogLevel(tcredis.LogLevelWarning))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start redis container: %v\n", err)
		return 1
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to terminate redis container: %v\n", err)
		}
	}()

	testRedisURL, err = container.ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get redis connection string: %v\n", err)
		return 1
	}

	return m.Run()
}

// setupTestClient connects through NewClient with the given hooks and starts
// every test from an empty keyspace.
func setupTestClient(t *testing.T, hooks ...goredis.Hook) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL, hooks...)
	require.NoError(t, err)
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })

	return client
}

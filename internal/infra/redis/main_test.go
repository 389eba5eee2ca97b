//go:build !integration

// File: internal/infra/redis/main_test.go
package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"media-cardkey-platform/internal/config"
)

// newTestClient spins up an in-process miniredis and connects a Client to it.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), &config.RedisConfig{URL: mr.Addr()})
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

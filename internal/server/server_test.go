package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskdb/duskdb/internal/client"
	"github.com/duskdb/duskdb/internal/server"
	"github.com/duskdb/duskdb/internal/store"
)

func startServer(t *testing.T) string {
	t.Helper()
	s, err := store.Open(t.TempDir(), store.Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	srv := server.New(addr, s, nil)
	go srv.Start()
	t.Cleanup(func() { srv.Stop() })

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return addr
}

func TestPutGetOverWire(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = c.Put(ctx, "a", []byte("1"))
	require.NoError(t, err)

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestGetMissingKeyOverWire(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, "not found", v)
}

func TestDeleteOverWire(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = c.Put(ctx, "a", []byte("1"))
	require.NoError(t, err)
	_, err = c.Delete(ctx, "a")
	require.NoError(t, err)
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "not found", v)
}

func TestScanOverWire(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Put(ctx, k, []byte(k+"-value"))
		require.NoError(t, err)
	}

	out, err := c.Scan(ctx, "", "")
	require.NoError(t, err)
	require.Contains(t, out, "a\ta-value")
	require.Contains(t, out, "b\tb-value")
	require.Contains(t, out, "c\tc-value")
}

func TestStatsOverWire(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = c.Put(ctx, "a", []byte("1"))
	require.NoError(t, err)

	out, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Contains(t, out, "writes=1")
}

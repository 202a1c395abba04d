package main

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/alicebob/miniredis/v2"
	"github.com/patrickwarner/holepunch/internal/source"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSeed(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	store := source.NewRedisSource(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "page:")

	fsys := fstest.MapFS{
		"index.html":             {Data: []byte(`<html><body>home</body></html>`)},
		"shoes/red-sneaker.html": {Data: []byte(`<html><head><script>var CURRENTPRODUCTID = 17;</script></head></html>`)},
		"shoes/index.html":       {Data: []byte(`<html><body>shoes</body></html>`)},
		"robots.txt":             {Data: []byte("User-agent: *")},
	}

	n, err := seed(context.Background(), zaptest.NewLogger(t), store, fsys, "/", "CURRENTPRODUCTID")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	ctx := context.Background()
	p, err := store.Fetch(ctx, "/shoes/red-sneaker.html", nil)
	require.NoError(t, err)
	assert.Equal(t, "17", p.ProductID)

	p, err = store.Fetch(ctx, "/shoes/", nil)
	require.NoError(t, err)
	assert.Contains(t, string(p.Body), "shoes")

	p, err = store.Fetch(ctx, "/", nil)
	require.NoError(t, err)
	assert.Contains(t, string(p.Body), "home")

	_, err = store.Fetch(ctx, "/robots.txt", nil)
	assert.ErrorIs(t, err, source.ErrPageNotFound)
}

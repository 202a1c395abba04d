package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickwarner/holepunch/internal/config"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"
	"github.com/patrickwarner/holepunch/internal/source"

	"go.uber.org/zap"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	var dir, addr, prefix, base string
	flag.StringVar(&dir, "dir", "", "directory of HTML snapshots")
	flag.StringVar(&addr, "redis", cfg.RedisAddr, "Redis address")
	flag.StringVar(&prefix, "prefix", cfg.RedisPagePrefix, "Redis key prefix for pages")
	flag.StringVar(&base, "base", "/", "URL path the directory is served under")
	flag.Parse()

	if dir == "" {
		fmt.Fprintln(os.Stderr, "dir required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := source.InitRedis(ctx, addr, prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	n, err := seed(ctx, logger, store, os.DirFS(dir), base, cfg.ProductIDGlobal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed pages: %v\n", err)
		os.Exit(1)
	}
	logger.Info("seeded pages", zap.Int("count", n), zap.String("dir", dir))
}

// seed stores every .html file of fsys under base. index.html also answers
// for its directory.
func seed(ctx context.Context, logger *zap.Logger, store *source.RedisSource, fsys fs.FS, base, productGlobal string) (int, error) {
	count := 0
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(name), ".html") {
			return nil
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}

		p := &source.Page{Body: body}
		if doc, err := page.ParseString(string(body)); err == nil {
			p.ProductID, _ = doc.ScriptGlobal(productGlobal)
		}

		paths := []string{path.Join("/", base, name)}
		if path.Base(name) == "index.html" {
			dir := path.Join("/", base, path.Dir(name))
			if dir != "/" {
				dir += "/"
			}
			paths = append(paths, dir)
		}
		for _, urlPath := range paths {
			if err := store.SavePage(ctx, urlPath, p); err != nil {
				return err
			}
			logger.Debug("stored page", zap.String("path", urlPath), zap.String("product_id", p.ProductID))
			count++
		}
		return nil
	})
	return count, err
}

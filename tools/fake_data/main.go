package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/holepunch/internal/config"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/source"
)

var (
	categories = flag.Int("categories", 3, "number of category pages")
	products   = flag.Int("products", 10, "products per category")
	outDir     = flag.String("out", "", "write pages to this directory instead of Redis")
	seed       = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

// demoPage is one generated cached page.
type demoPage struct {
	Path      string
	Title     string
	ProductID string
	Items     []demoItem
}

type demoItem struct {
	Name  string
	Path  string
	Price string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
{{if .ProductID}}<script>var CURRENTPRODUCTID = {{.ProductID}};</script>{{end}}
</head>
<body>
<header>
<div class="placeholder" rel="#header-welcome">Welcome to the demo shop</div>
<div id="minicart" class="placeholder" rel="#header-cart">Your cart is empty</div>
</header>
<h1>{{.Title}}</h1>
{{if .Items}}<ul class="products">
{{range .Items}}<li><a href="{{.Path}}">{{.Name}}</a> {{.Price}}</li>
{{end}}</ul>{{end}}
{{if .ProductID}}<div class="placeholder" rel=".product-stock">In stock</div>
<div id="recently-viewed" class="placeholder" rel="#recently-viewed"></div>{{end}}
<footer>Static footer</footer>
</body>
</html>
`))

var adjectives = []string{"Classic", "Urban", "Light", "Trail", "Vintage", "Soft", "Bold"}
var nouns = []string{"Sneaker", "Jacket", "Backpack", "Shirt", "Boot", "Scarf", "Watch"}
var categoryNames = []string{"Shoes", "Outerwear", "Accessories", "Bags", "Shirts", "Sale"}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	r := rand.New(rand.NewSource(*seed))
	pages := generate(r, *categories, *products)

	if *outDir != "" {
		if err := writeDir(*outDir, pages); err != nil {
			logger.Fatal("write pages", zap.Error(err))
		}
		logger.Info("pages written", zap.Int("count", len(pages)), zap.String("dir", *outDir))
		return
	}

	cfg := config.Load()
	ctx := context.Background()
	store, err := source.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPagePrefix)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer store.Close()

	if err := storePages(ctx, store, pages); err != nil {
		logger.Fatal("store pages", zap.Error(err))
	}
	logger.Info("pages stored", zap.Int("count", len(pages)), zap.String("redis", cfg.RedisAddr))
}

// generate builds a home page, category listings and product pages.
func generate(r *rand.Rand, categoryCount, perCategory int) []demoPage {
	if categoryCount > len(categoryNames) {
		categoryCount = len(categoryNames)
	}
	home := demoPage{Path: "/", Title: "Demo Shop"}
	var pages []demoPage
	productID := 100

	for c := 0; c < categoryCount; c++ {
		slug := strings.ToLower(categoryNames[c])
		category := demoPage{Path: "/" + slug + "/", Title: categoryNames[c]}
		home.Items = append(home.Items, demoItem{Name: category.Title, Path: category.Path})

		for p := 0; p < perCategory; p++ {
			productID++
			name := fakeProductName(r)
			item := demoItem{
				Name:  name,
				Path:  fmt.Sprintf("/%s/%s-%d.html", slug, strings.ToLower(strings.ReplaceAll(name, " ", "-")), productID),
				Price: fmt.Sprintf("%d.%02d EUR", 10+r.Intn(190), r.Intn(100)),
			}
			category.Items = append(category.Items, item)
			pages = append(pages, demoPage{Path: item.Path, Title: name, ProductID: fmt.Sprint(productID)})
		}
		pages = append(pages, category)
	}
	return append([]demoPage{home}, pages...)
}

func fakeProductName(r *rand.Rand) string {
	return adjectives[r.Intn(len(adjectives))] + " " + nouns[r.Intn(len(nouns))]
}

func render(p demoPage) ([]byte, error) {
	var b strings.Builder
	if err := pageTemplate.Execute(&b, p); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func storePages(ctx context.Context, store *source.RedisSource, pages []demoPage) error {
	for _, p := range pages {
		body, err := render(p)
		if err != nil {
			return fmt.Errorf("render %s: %w", p.Path, err)
		}
		if err := store.SavePage(ctx, p.Path, &source.Page{Body: body, ProductID: p.ProductID}); err != nil {
			return err
		}
	}
	return nil
}

// writeDir lays pages out so that seed_pages can load them later.
func writeDir(dir string, pages []demoPage) error {
	for _, p := range pages {
		body, err := render(p)
		if err != nil {
			return fmt.Errorf("render %s: %w", p.Path, err)
		}
		name := p.Path
		if strings.HasSuffix(name, "/") {
			name += "index.html"
		}
		target := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(name, "/")))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, body, 0o644); err != nil {
			return err
		}
	}
	return nil
}

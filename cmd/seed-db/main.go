// Command seed-db loads the product catalog into the database. The
// products file may be plain JSON or gzip-compressed JSON; large
// catalogs are upserted by a small worker pool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/farisdwi28/petneeds/internal/storage/postgres"
)

const upsertWorkers = 4

type productJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Active        *bool           `json:"active"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	jobs := make(chan productJSON)
	g, ctx := errgroup.WithContext(ctx)

	for range upsertWorkers {
		g.Go(func() error {
			for p := range jobs {
				active := true
				if p.Active != nil {
					active = *p.Active
				}
				_, err := pool.Exec(ctx, `
					INSERT INTO products (id, name, sku, description, price, stock_quantity, active)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
					ON CONFLICT (id) DO UPDATE SET
						name = EXCLUDED.name,
						sku = EXCLUDED.sku,
						description = EXCLUDED.description,
						price = EXCLUDED.price,
						stock_quantity = EXCLUDED.stock_quantity,
						active = EXCLUDED.active,
						updated_at = now()`,
					p.ID, p.Name, p.SKU, p.Description, p.Price, p.StockQuantity, active)
				if err != nil {
					return errors.Wrapf(err, "upsert product %s", p.ID)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, p := range products {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

func readProducts(path string) ([]productJSON, error) {
	slog.Info("reading products file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	var products []productJSON
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	for _, p := range products {
		if p.ID == "" || p.Name == "" || p.SKU == "" {
			return nil, errors.Errorf("product missing id, name or sku: %+v", p)
		}
	}
	return products, nil
}

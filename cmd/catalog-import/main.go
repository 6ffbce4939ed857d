package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-store/internal/catalog"
	"github.com/xenking/kart-store/internal/domain/product"
	"github.com/xenking/kart-store/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineBytes  = 1 << 20
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing product feeds")
	flag.StringVar(&pattern, "pattern", "feed*.jsonl.gz", "glob of feed files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing to the database")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds match %s in %s", pattern, dataDir)
	}
	sort.Strings(files)

	slog.Info("reading feeds", slog.Int("files", len(files)))

	feeds, err := readFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read feeds")
	}

	products, dups := merge(feeds)
	for _, modelNo := range dups {
		slog.Warn("model number appears in more than one feed, last feed wins", slog.String("model_no", modelNo))
	}
	slog.Info("feeds merged",
		slog.Int("products", len(products)),
		slog.Int("cross_feed_duplicates", len(dups)),
	)

	if dryRun || len(products) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeProducts(ctx, postgres.NewProductRepository(pool), products)
}

// feed holds the products parsed from one file and a bloom filter over
// their model numbers.
type feed struct {
	path     string
	products []product.Product
	seen     *bloom.BloomFilter
}

// readFeeds parses every feed concurrently.
func readFeeds(ctx context.Context, files []string) ([]feed, error) {
	feeds := make([]feed, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f, err := readFeed(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "feed %s", filepath.Base(path))
			}
			feeds[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feeds, nil
}

func readFeed(ctx context.Context, path string) (feed, error) {
	f := feed{
		path: path,
		seen: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	var line int
	err := streamGzFile(ctx, path, func(data []byte) error {
		line++
		if len(data) == 0 {
			return nil
		}

		rec, err := catalog.Parse(data)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		p, err := rec.Product()
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}

		f.products = append(f.products, p)
		f.seen.AddString(p.ModelNo)

		if len(f.products)%progressEvery == 0 {
			slog.Info("read progress",
				slog.String("file", filepath.Base(path)),
				slog.Int("products", len(f.products)),
			)
		}
		return nil
	})
	if err != nil {
		return feed{}, err
	}

	slog.Info("feed read",
		slog.String("file", filepath.Base(path)),
		slog.Int("products", len(f.products)),
	)
	return f, nil
}

// merge collapses feeds into one product per model number, later feeds
// overriding earlier ones. It also returns the model numbers found in more
// than one feed: the bloom filters of earlier feeds prefilter, firstFeed
// confirms.
func merge(feeds []feed) ([]product.Product, []string) {
	var (
		index     = make(map[string]int)
		firstFeed = make(map[string]int)
		reported  = make(map[string]bool)
		products  []product.Product
		dups      []string
	)

	for fi, f := range feeds {
		for _, p := range f.products {
			first, seen := firstFeed[p.ModelNo]
			if !seen {
				firstFeed[p.ModelNo] = fi
			}
			if seen && first < fi && !reported[p.ModelNo] && mightContain(feeds[:fi], p.ModelNo) {
				dups = append(dups, p.ModelNo)
				reported[p.ModelNo] = true
			}

			if i, ok := index[p.ModelNo]; ok {
				p.ID = products[i].ID
				products[i] = p
				continue
			}
			index[p.ModelNo] = len(products)
			products = append(products, p)
		}
	}

	sort.Strings(dups)
	return products, dups
}

func mightContain(feeds []feed, modelNo string) bool {
	for _, f := range feeds {
		if f.seen.TestString(modelNo) {
			return true
		}
	}
	return false
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

func writeProducts(ctx context.Context, repo *postgres.ProductRepository, products []product.Product) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	for i, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}

		if (i+1)%100 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	return nil
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-store/internal/catalog"
	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/storage/postgres"
)

type seedKey struct {
	id     string
	name   string
	userID string
	role   auth.Role
	key    string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		customerKey  string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customerKey, "customer-key", "", "customer API key to seed (or KART_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or KART_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	databaseURL = orEnv(databaseURL, "DATABASE_URL")
	customerKey = orEnv(customerKey, "KART_SEED_CUSTOMER_KEY")
	adminKey = orEnv(adminKey, "KART_SEED_ADMIN_KEY")
	apiKeyPepper = orEnv(apiKeyPepper, "KART_API_KEY_PEPPER")

	switch {
	case databaseURL == "":
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	case customerKey == "" || adminKey == "":
		slog.Error("API keys are required: set --customer-key and --admin-key")
		os.Exit(1)
	case apiKeyPepper == "":
		slog.Error("API key pepper is required: set --api-key-pepper or KART_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := []seedKey{
		{id: "customer", name: "Default customer key", userID: "customer-1", role: auth.RoleCustomer, key: customerKey},
		{id: "admin", name: "Default admin key", userID: "admin-1", role: auth.RoleAdmin, key: adminKey},
	}
	if err := run(ctx, databaseURL, productsFile, keys, []byte(apiKeyPepper)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, databaseURL, productsFile string, keys []seedKey, pepper []byte) error {
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

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKeys(ctx, postgres.NewAPIKeyRepository(pool), keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	records, err := catalog.ParseAll(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	slog.Info("upserting products", slog.Int("count", len(records)))

	for _, rec := range records {
		p, err := rec.Product()
		if err != nil {
			return err
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("model_no", p.ModelNo))
	}

	return nil
}

func seedAPIKeys(ctx context.Context, repo *postgres.APIKeyRepository, keys []seedKey, pepper []byte) error {
	for _, k := range keys {
		if err := repo.Upsert(ctx, auth.APIKeyInfo{
			ID:      k.id,
			KeyHash: auth.HashKey(k.key, pepper),
			Name:    k.name,
			UserID:  k.userID,
			Role:    k.role,
		}); err != nil {
			return errors.Wrapf(err, "upsert API key %s", k.id)
		}

		slog.Info("upserted API key",
			slog.String("id", k.id),
			slog.String("user_id", k.userID),
			slog.String("role", string(k.role)),
		)
	}

	return nil
}

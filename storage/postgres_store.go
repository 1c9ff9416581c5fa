package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"autoria-scraper/config"
	"autoria-scraper/models"
)

const uniqueViolation = "23505"

// listingColumns is the column order shared by inserts, reads and dumps.
var listingColumns = []string{
	"url", "title", "price_usd", "odometer", "username", "phone_number",
	"image_url", "images_count", "car_number", "car_vin", "datetime_found",
}

// PostgresStore is the dedup and persistence gateway for the cars table.
// Every method borrows a pooled connection for the duration of one query.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse DATABASE_URL: %v", models.ErrStorageConnectivity, err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}
	poolCfg.MinConns = 1

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create postgres pool: %v", models.ErrStorageConnectivity, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: connect postgres: %v", models.ErrStorageConnectivity, err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS cars (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		price_usd INTEGER NOT NULL CHECK (price_usd >= 0),
		odometer INTEGER NOT NULL,
		username TEXT NOT NULL,
		phone_number BIGINT NOT NULL,
		image_url TEXT NOT NULL,
		images_count INTEGER NOT NULL CHECK (images_count >= 0),
		car_number TEXT NOT NULL,
		car_vin TEXT NOT NULL,
		datetime_found TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT cars_url_key UNIQUE (url)
	);

	CREATE INDEX IF NOT EXISTS idx_cars_datetime_found ON cars(datetime_found);
	`

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return classify("ensure schema", err)
	}
	return nil
}

// Exists reports whether a listing with this URL is already stored.
func (s *PostgresStore) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cars WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, classify("check listing", err)
	}
	return exists, nil
}

// Insert stores a new listing; datetime_found is assigned by the database.
// A second insert of the same URL fails with models.ErrDuplicateListing.
func (s *PostgresStore) Insert(ctx context.Context, l models.Listing) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO cars (
		url, title, price_usd, odometer, username, phone_number,
		image_url, images_count, car_number, car_vin, datetime_found
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		l.URL, l.Title, l.PriceUSD, l.Odometer, l.Username, l.PhoneNumber,
		l.ImageURL, l.ImagesCount, l.CarNumber, l.CarVIN,
	)
	if err != nil {
		return classify("insert listing", err)
	}
	return nil
}

// StreamListings calls fn for every stored listing in insertion order.
func (s *PostgresStore) StreamListings(ctx context.Context, fn func(models.Listing) error) error {
	rows, err := s.pool.Query(ctx, `
	SELECT id, url, title, price_usd, odometer, username, phone_number,
	       image_url, images_count, car_number, car_vin, datetime_found
	FROM cars ORDER BY id`)
	if err != nil {
		return classify("read listings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID, &l.URL, &l.Title, &l.PriceUSD, &l.Odometer, &l.Username, &l.PhoneNumber,
			&l.ImageURL, &l.ImagesCount, &l.CarNumber, &l.CarVIN, &l.DatetimeFound,
		); err != nil {
			return classify("scan listing", err)
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return classify("read listings", err)
	}
	return nil
}

// classify maps driver errors onto the storage error taxonomy: unique
// violations become ErrDuplicateListing, server-reported errors stay plain
// storage errors, anything else is treated as lost connectivity.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, models.ErrDuplicateListing)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrStorageConnectivity, err)
}

// Package pagecache stores fetched page bodies keyed by their normalized url.
//
// it is backed by sqlite, either a local file (modernc.org/sqlite) or a
// remote libsql database, writes are last-writer-wins.
package pagecache

import (
	configlibsql "bookreviews-backend/lib/configutil/libsql"
	"bookreviews-backend/lib/telemetry"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("bookreviews.lib.pagecache")

var ErrCacheMiss = errors.New("pagecache: miss")

//go:embed schema.sql
var Schema string

type Cache struct {
	db *sql.DB
}

// Open opens the database described by `opts` and makes sure the cache
// table exists.
func Open(ctx context.Context, opts configlibsql.Struct) (*Cache, error) {
	db, err := opts.OpenDB("")
	if err != nil {
		return nil, fmt.Errorf("pagecache: %w", err)
	}
	cache, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

// New wraps an already opened database.
func New(ctx context.Context, db *sql.DB) (*Cache, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return nil, fmt.Errorf("create page cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Key normalizes a url so that equivalent urls share a cache entry.
func Key(rawUrl string) (string, error) {
	parsed, err := url.Parse(rawUrl)
	if err != nil {
		return "", err
	}
	return purell.NormalizeURL(
		parsed,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveDirectoryIndex|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	), nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "cache:Get")
	defer span.End()

	span.SetAttributes(attribute.String("cache_key", key))

	var body []byte
	err := c.db.QueryRowContext(
		ctx,
		"select body from page_cache where key = ?",
		key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cached page")
		return nil, err
	}

	span.SetAttributes(attribute.Int("contentlength", len(body)))
	return body, nil
}

func (c *Cache) Put(ctx context.Context, key string, body []byte) error {
	ctx, span := tracer.Start(ctx, "cache:Put")
	defer span.End()

	span.SetAttributes(attribute.String("cache_key", key))

	_, err := c.db.ExecContext(
		ctx,
		`insert into page_cache(key, body, stored_at) values (?, ?, ?)
		on conflict(key) do update set body = excluded.body, stored_at = excluded.stored_at`,
		key, body, time.Now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write cached page")
		return err
	}
	return nil
}

// Len returns the number of cached pages.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "select count(*) from page_cache").Scan(&count)
	return count, err
}

func (c *Cache) Close() error {
	return c.db.Close()
}

package db

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is nil when DATABASE_URL is unset; callers run without
// persistence in that case.
var Pool *pgxpool.Pool

var (
	newPool = pgxpool.New
	pingPool = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

func InitPostgres(ctx context.Context) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Println("DATABASE_URL not set, running without Postgres")
		return
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to create Postgres pool: %v", err)
	}
	if err := pingPool(ctx, pool); err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	Pool = pool
	log.Println("Connected to Postgres")
}

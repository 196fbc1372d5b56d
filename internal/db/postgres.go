package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Connect opens an instrumented PostgreSQL pool for dsn and pings it.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	attrs := Attributes(dsn)

	db, err := otelsql.Open("postgres", dsn, otelsql.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(attrs...)); err != nil {
		logger.Warn("failed to register database stats metrics", zap.Error(err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	logger.Info("connected to PostgreSQL")
	return db, nil
}

// Attributes returns the span attributes describing dsn.
func Attributes(dsn string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.DBSystemPostgreSQL}
	if name := databaseName(dsn); name != "" {
		attrs = append(attrs, semconv.DBName(name))
	}
	return attrs
}

// databaseName reads the database from a URL or key=value DSN.
func databaseName(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	for _, field := range strings.Fields(dsn) {
		if v, ok := strings.CutPrefix(field, "dbname="); ok {
			return v
		}
	}
	return ""
}

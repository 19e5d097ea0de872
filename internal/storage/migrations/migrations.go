// Package migrations applies the embedded schema files for both backends.
// Files run in lexical order and must be idempotent (CREATE ... IF NOT
// EXISTS), so re-running on startup is always safe.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"sort"
	"strings"

	chstore "solana-token-radar/internal/storage/clickhouse"
	"solana-token-radar/internal/storage/postgres"
)

//go:embed postgres/*.sql clickhouse/*.sql
var schemaFS embed.FS

// RunPostgresMigrations applies the token-index schema on an existing pool.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles("postgres")
	if err != nil {
		return err
	}
	for _, file := range files {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// RunClickhouseMigrations creates the analysis database named by the DSN,
// applies the trade and snapshot schemas, and returns a connection to the
// target database for the caller to reuse.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	// Bootstrap without a selected database so CREATE DATABASE works on a
	// fresh server.
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	createErr := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	admin.Close()
	if createErr != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, createErr)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	files, err := sqlFiles("clickhouse")
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, file := range files {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		// The native driver rejects multi-statement Exec calls, so each
		// file runs statement by statement.
		for _, stmt := range splitStatements(string(data)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}
	return conn, nil
}

// sqlFiles lists the embedded .sql files under dir in lexical order.
func sqlFiles(dir string) ([]string, error) {
	entries, err := schemaFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, dir+"/"+entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits a migration file on semicolons, dropping -- comment
// lines first. Migration files must not put semicolons inside string
// literals; the schemas here never need them.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/repository/postgres"
)

func main() {
	dir := flag.String("dir", "", "directory of extra .sql files applied after the base schema")
	listOnly := flag.Bool("list", false, "list automation tables and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("[migrate] DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, dsn, postgres.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		logger.Error("[migrate] connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *listOnly {
		if err := listTables(ctx, db); err != nil {
			logger.Error("[migrate] list tables", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := postgres.ApplySchema(ctx, db); err != nil {
		logger.Error("[migrate] base schema", "error", err)
		os.Exit(1)
	}
	logger.Info("[migrate] base schema applied")

	if *dir == "" {
		return
	}
	ok, failed, err := applyDir(ctx, db, *dir)
	if err != nil {
		logger.Error("[migrate] read migrations", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("[migrate] done", "ok", ok, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func listTables(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Println(" ", t)
		n++
	}
	fmt.Printf("Total: %d tables\n", n)
	return rows.Err()
}

// applyDir runs every .sql file in dir in name order, each in its own
// transaction. A failing file is logged and the rest still run.
func applyDir(ctx context.Context, db *sql.DB, dir string) (ok, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return ok, failed, err
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if err := execTx(ctx, db, string(data)); err != nil {
			logger.Error("[migrate] migration failed", "file", f, "error", err)
			failed++
			continue
		}
		logger.Info("[migrate] applied", "file", f)
		ok++
	}
	return ok, failed, nil
}

func execTx(ctx context.Context, db *sql.DB, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/nftbay/nftbay-backend/internal/config"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var dir = flag.String("dir", "sql", "directory with migration files")

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-dir DIR] COMMAND")
	fmt.Fprintln(os.Stderr, "\nCommands:\n  up       apply all pending migrations\n  down     roll back the latest migration\n  status   print migration status\n  version  print the current migration version")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := run(flag.Arg(0), db, *dir); err != nil {
		log.Fatalf("Migration %s failed: %v", flag.Arg(0), err)
	}
}

func run(command string, db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch command {
	case "up":
		return goose.Up(db, dir)
	case "down":
		return goose.Down(db, dir)
	case "status":
		return goose.Status(db, dir)
	case "version":
		return goose.Version(db, dir)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

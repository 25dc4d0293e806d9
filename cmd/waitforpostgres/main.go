// Command waitforpostgres blocks until Postgres accepts connections.
// Compose files and CI scripts run it before the server or the integration
// tests so neither races the database container.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	var (
		timeout  = flag.Duration("timeout", 60*time.Second, "give up after this long")
		interval = flag.Duration("interval", 2*time.Second, "delay between attempts")
	)
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("TEST_POSTGRES_DSN")
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL or TEST_POSTGRES_DSN is required")
		os.Exit(2)
	}

	if err := wait(dsn, *timeout, *interval); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("postgres ready")
}

func wait(dsn string, timeout, interval time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("postgres not ready after %d attempts (%s): %w", attempt, timeout, err)
		}
		time.Sleep(interval)
	}
}

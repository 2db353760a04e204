// Package main is the entrypoint for the courier worker binary.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/couriermq/courier/internal/config"
	"github.com/couriermq/courier/internal/server"
	"github.com/couriermq/courier/pkg/contract"
	"github.com/couriermq/courier/pkg/journal"
)

const usage = `Usage: courier [command]
       courier serve                    Start the worker (broker, dispatch, HTTP health).
       courier migrate up               Apply the failure-journal schema.
       courier migrate status           Report whether the journal schema is applied.
       courier clear                    Truncate the failure journal; schema is preserved.
       courier failures [limit]         Show the most recent journaled failures (default 20).
       courier contract validate [file] Verify the demo registrations against a contract file.
       courier contract show [file]     Print the loaded contract.
       courier ensure-db [name]         Create the journal database if missing (default name: courier_test).
       courier help                     Show this help.

Environment: COMMS_URL, SERVICE_NAME, COURIER_STREAM, COURIER_QUEUE_GROUP,
DISPATCH_TIMEOUT, COURIER_CONTRACT_FILE, DATABASE_URL, RUN_MIGRATIONS,
COURIER_HTTP_ADDR, HTTP_PORT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("courier migrate: require subcommand (up, status)")
		}
		switch args[1] {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("courier migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("courier migrate status: %v", err)
			}
		default:
			log.Fatalf("courier migrate: unknown subcommand %q (use up, status)", args[1])
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("courier clear: %v", err)
		}
		return
	case "failures":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				log.Fatalf("courier failures: invalid limit %q", args[1])
			}
			limit = n
		}
		if err := runFailures(limit); err != nil {
			log.Fatalf("courier failures: %v", err)
		}
		return
	case "contract":
		if len(args) < 2 {
			log.Fatalf("courier contract: require subcommand (validate, show)")
		}
		file := ""
		if len(args) > 2 {
			file = args[2]
		}
		switch args[1] {
		case "validate":
			if err := runContractValidate(file); err != nil {
				log.Fatalf("courier contract validate: %v", err)
			}
		case "show":
			if err := runContractShow(file); err != nil {
				log.Fatalf("courier contract show: %v", err)
			}
		default:
			log.Fatalf("courier contract: unknown subcommand %q (use validate, show)", args[1])
		}
		return
	case "ensure-db":
		dbName := "courier_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("courier ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(registerDemoTypes); err != nil {
		log.Fatalf("courier: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := journal.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return journal.Migrate(ctx, pool)
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := journal.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	present, err := journal.SchemaPresent(ctx, pool)
	if err != nil {
		return err
	}
	if present {
		fmt.Println("Journal schema is applied.")
	} else {
		fmt.Println("Journal schema is missing; run: courier migrate up")
	}
	return nil
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := journal.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return journal.Clear(ctx, pool)
}

func runFailures(limit int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := journal.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	entries, err := journal.NewPgJournal(pool).ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No journaled failures.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%d  %s  %s  %s  %v\n", e.ID, e.Created.Format("2006-01-02 15:04:05"), e.RoutingKey, e.FailureKind, e.Errors)
	}
	return nil
}

func runContractValidate(file string) error {
	c, err := contract.Load(file)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	reg, err := demoRegistry()
	if err != nil {
		return err
	}
	if err := contract.Verify(c, reg); err != nil {
		return err
	}
	fmt.Printf("Contract %s %s: OK (%d message types)\n", c.Name, c.Version, len(c.Messages))
	return nil
}

func runContractShow(file string) error {
	c, err := contract.Load(file)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	fmt.Printf("Contract: %s %s\n", c.Name, c.Version)
	if c.Description != "" {
		fmt.Printf("  %s\n", c.Description)
	}
	for name, msg := range c.Messages {
		fmt.Printf("  %s  version=%s compat=%s actions=%v\n", name, msg.Version, msg.Compat, msg.Actions)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()

	// Rebuild the URL against the requested database name.
	url := rewriteDatabaseName(cfg.DatabaseURL, dbName)
	if err := journal.EnsureDatabase(ctx, url); err != nil {
		return err
	}
	fmt.Printf("Database %s is ready.\n", dbName)
	return nil
}

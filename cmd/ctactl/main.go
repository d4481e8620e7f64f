// main.go - Operator control tool for ctabeacon
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"ctabeacon/internal"
	"ctabeacon/internal/config"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/operators"
	"ctabeacon/internal/seeder"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	minPasswordLength      = 8
)

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

var commands = []Command{
	&CreateOperatorCommand{},
	&ChangePasswordCommand{},
	&MigrateCommand{},
	&ImportCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()
	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	if _, ok := cmd.(*HelpCommand); ok {
		_ = cmd.Execute(ctx, nil, args)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// CreateOperatorCommand creates an operator account.
type CreateOperatorCommand struct{}

func (c *CreateOperatorCommand) Name() string        { return "create-operator" }
func (c *CreateOperatorCommand) Description() string { return "Creates an operator account: <email> [password]" }

func (c *CreateOperatorCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}
	email := args[0]

	password, err := passwordFromArgs(args, 1)
	if err != nil {
		return err
	}

	logger := slog.Default()
	op, err := operators.Create(app.DBManager.GetConnection(), logger, email, password)
	if err != nil {
		if errors.Is(err, operators.ErrOperatorExists) {
			log.Printf("Operator %s already exists", email)
			return nil
		}
		return fmt.Errorf("failed to create operator: %w", err)
	}

	log.Printf("Created operator %s (id %d)", op.Email, op.ID)
	return nil
}

// ChangePasswordCommand updates the password of an existing operator.
type ChangePasswordCommand struct{}

func (c *ChangePasswordCommand) Name() string        { return "change-password" }
func (c *ChangePasswordCommand) Description() string { return "Changes an operator password: <email> [password]" }

func (c *ChangePasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}
	email := args[0]

	db := app.DBManager.GetConnection()
	if _, err := operators.FindByEmail(db, email); err != nil {
		return fmt.Errorf("operator lookup failed: %w", err)
	}

	password, err := passwordFromArgs(args, 1)
	if err != nil {
		return err
	}

	if err := operators.ChangePassword(db, slog.Default(), email, password); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// ImportCommand loads CTA definitions from a YAML file.
type ImportCommand struct{}

func (c *ImportCommand) Name() string        { return "import" }
func (c *ImportCommand) Description() string { return "Imports CTA definitions: <file.yml>" }

func (c *ImportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <file.yml>", c.Name())
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	defs, err := ctas.LoadDefinitions(f)
	if err != nil {
		return err
	}

	n, err := ctas.Import(app.DBManager.GetConnection(), slog.Default(), defs)
	if err != nil {
		return err
	}
	log.Printf("Imported %d CTA definitions", n)
	return nil
}

// SeedCommand populates the DB with synthetic telemetry for one CTA.
type SeedCommand struct{}

func (c *SeedCommand) Name() string { return "seed" }
func (c *SeedCommand) Description() string {
	return "Seeds sample events: [-sessions N] [-cta ID]"
}

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	sessions := fs.Int("sessions", 500, "number of visitor sessions to generate")
	ctaID := fs.Uint("cta", 0, "existing CTA id (creates a demo CTA when zero)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.GetConfig()
	se := seeder.NewSeeder(app.DBManager.GetConnection(), slog.Default(), *sessions, cfg.PrivateKey)
	id, err := se.Run(ctx, *ctaID)
	if err != nil {
		return err
	}
	log.Printf("Seeded CTA %d", id)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	count, err := operators.Count(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var ctaCount int64
	if err := db.Model(&ctas.Definition{}).Count(&ctaCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	counterStatus := "ok"
	if err := app.Services.Counters.Ping(ctx); err != nil {
		counterStatus = err.Error()
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Operators: %d", count)
	log.Printf("- CTAs: %d", ctaCount)
	log.Printf("- Counter store: %s", counterStatus)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// passwordFromArgs returns args[i] or prompts twice without echo.
func passwordFromArgs(args []string, i int) (string, error) {
	var password string
	if len(args) > i {
		password = args[i]
	} else {
		fmt.Print("Enter password: ")
		first, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		second, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		password = string(first)
	}

	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return password, nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: ctactl [command] [args...]")
	fmt.Println("Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}

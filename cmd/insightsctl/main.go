// main.go - Admin control tool for visitor insights
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/term"

	"visitorinsights/internal"
	"visitorinsights/internal/analytics"
	"visitorinsights/internal/jobs"
	"visitorinsights/internal/seeder"
	"visitorinsights/internal/timeframe"
	"visitorinsights/internal/users"
	"visitorinsights/internal/visitors"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&CreateUserCommand{},
	&ChangePasswordCommand{},
	&MigrateCommand{},
	&RefreshCommand{},
	&BackfillCommand{},
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

	err = cmd.Execute(ctx, app, args)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancelShutdown()
	if shutdownErr := app.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("Warning: Cleanup error: %v", shutdownErr)
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// CreateUserCommand creates a dashboard user
type CreateUserCommand struct{}

func (c *CreateUserCommand) Name() string {
	return "create-user"
}

func (c *CreateUserCommand) Description() string {
	return "Creates a dashboard user: create-user <email> [password]"
}

func (c *CreateUserCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}
	email := args[0]

	password := ""
	if len(args) >= 2 {
		password = args[1]
	} else {
		var err error
		password, err = promptNewPassword()
		if err != nil {
			return err
		}
	}

	log.Printf("Creating user with email: %s", email)

	db := app.DBManager.GetConnection().WithContext(ctx)
	if _, err := users.Register(db, email, password); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			log.Printf("User %s already exists", email)
			return nil
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ChangePasswordCommand implements password update for an existing user
type ChangePasswordCommand struct{}

func (c *ChangePasswordCommand) Name() string {
	return "change-password"
}

func (c *ChangePasswordCommand) Description() string {
	return "Changes the password of an existing user: change-password [email] [password]"
}

func (c *ChangePasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var email string
	if len(args) >= 1 {
		email = args[0]
	} else {
		fmt.Print("Enter email: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		email = strings.TrimSpace(input)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	db := app.DBManager.GetConnection().WithContext(ctx)
	if _, err := users.FindByEmail(db, email); err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	var newPassword string
	if len(args) >= 2 {
		newPassword = args[1]
	} else {
		var err error
		newPassword, err = promptNewPassword()
		if err != nil {
			return err
		}
	}

	if err := users.ChangePassword(db, email, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string {
	return "migrate"
}

func (c *MigrateCommand) Description() string {
	return "Runs database migrations"
}

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// RefreshCommand refreshes a range of days from the visitor API
type RefreshCommand struct{}

func (c *RefreshCommand) Name() string {
	return "refresh"
}

func (c *RefreshCommand) Description() string {
	return "Refreshes days from the API: refresh [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-device ID]"
}

func (c *RefreshCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	start := fs.String("start", "", "first day (defaults to today)")
	end := fs.String("end", "", "last day (defaults to start)")
	device := fs.String("device", "", "device (store) id; empty or all for every store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rng, err := timeframe.ParseRangeWithDefaults(*start, *end, quartz.NewReal())
	if err != nil {
		return err
	}

	scope := analytics.AllStores()
	if *device != "all" {
		scope = analytics.Store(*device)
	}

	days, err := app.Refresher.RefreshRange(ctx, rng, scope)
	log.Printf("Refreshed %d of %d day(s) in %s", days, rng.Len(), rng)
	return err
}

// BackfillCommand runs the startup backfill on demand
type BackfillCommand struct{}

func (c *BackfillCommand) Name() string {
	return "backfill"
}

func (c *BackfillCommand) Description() string {
	return "Refreshes the last N days for all stores: backfill [-days N]"
}

func (c *BackfillCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	days := fs.Int("days", app.Config.BackfillDays, "number of days before today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scheduler := jobs.NewScheduler(app.Refresher, app.Logger, jobs.Options{BackfillDays: *days})
	if failed := scheduler.Backfill(ctx); failed > 0 {
		return fmt.Errorf("%d day(s) failed to backfill", failed)
	}
	return ctx.Err()
}

// SeedCommand populates the DB with synthetic visitor data
type SeedCommand struct{}

func (c *SeedCommand) Name() string {
	return "seed"
}

func (c *SeedCommand) Description() string {
	return "Seeds the database with synthetic visitor data"
}

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	perDay := fs.Int("visitors", 200, "visitors per store per day")
	days := fs.Int("days", 30, "number of days before today to seed")
	stores := fs.String("stores", strings.Join(seeder.DefaultStores, ","), "comma separated device ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app.Config.IsProduction() {
		return fmt.Errorf("refusing to seed a production database")
	}

	clock := quartz.NewReal()
	se := seeder.NewSeeder(app.DBManager.GetConnection(), app.Logger, *perDay)
	se.Stores = splitList(*stores)

	_, err := se.Run(ctx, timeframe.LastDays(*days, clock), clock)
	return err
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string {
	return "status"
}

func (c *StatusCommand) Description() string {
	return "Shows the current system status"
}

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection().WithContext(ctx)

	var userCount, rollupCount int64
	if err := db.Model(&users.User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&analytics.DailyRollup{}).Count(&rollupCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	recordCount, err := visitors.Count(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var latest analytics.DailyRollup
	latestErr := db.Order("updated_at DESC").First(&latest).Error

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Users: %d", userCount)
	log.Printf("- Daily rollups: %d", rollupCount)
	log.Printf("- Visitor records: %d", recordCount)
	if latestErr == nil {
		stores := latest.Scope
		if scope, ok := analytics.ParseScopeKey(latest.Scope); ok {
			stores = "all stores"
			if !scope.IsAll() {
				stores = "store " + scope.StoreID()
			}
		}
		log.Printf("- Last refresh: %s (%s, %s)", latest.UpdatedAt.Format(time.RFC3339), latest.Day, stores)
	} else {
		log.Println("- Last refresh: never")
	}
	log.Printf("- DisplayForce token configured: %t", app.Config.DisplayForceToken != "")

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string {
	return "help"
}

func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// Helper functions

// promptNewPassword reads a password twice without echo when stdin is a
// terminal, and once from a line otherwise.
func promptNewPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		input, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && input == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return nonEmpty(strings.TrimSpace(input))
	}

	fmt.Print("Enter new password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Print("Confirm new password: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return nonEmpty(string(first))
}

func nonEmpty(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
	fmt.Println("Usage: insightsctl [command] [args...]")
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

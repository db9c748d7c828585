package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

// migrator is the part of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log.Printf("Migrating %s@%s:%s/%s from %s",
		env.GetEnv("DB_USER", "ticketfox"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "ticketfox_db"),
		migrationsPath(),
	)

	m, err := migrate.New("file://"+migrationsPath(), databaseURL())
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	msg, err := run(m, os.Args[1:])
	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Println(msg)
}

var errUsage = errors.New("usage")

func migrationsPath() string {
	return env.GetEnv("MIGRATIONS_PATH", "migrations")
}

// databaseURL is the golang-migrate form of the DB_* settings. Migrations
// hold several statements per file.
func databaseURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "ticketfox"),
		env.GetEnv("DB_PASSWORD", "ticketfox"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "ticketfox_db"),
	)
}

// run executes one command and returns the line to report.
func run(m migrator, args []string) (string, error) {
	if len(args) == 0 {
		return "", errUsage
	}

	switch args[0] {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			return "No change: database is already up to date", nil
		}
		if err != nil {
			return "", fmt.Errorf("apply migrations: %w", err)
		}
		return "Migrations applied", nil

	case "down":
		if err := m.Steps(-1); err != nil {
			return "", fmt.Errorf("roll back last migration: %w", err)
		}
		return "Last migration rolled back", nil

	case "goto":
		version, err := versionArg(args)
		if err != nil {
			return "", err
		}
		err = m.Migrate(uint(version))
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Sprintf("No change: database is already at version %d", version), nil
		}
		if err != nil {
			return "", fmt.Errorf("migrate to version %d: %w", version, err)
		}
		return fmt.Sprintf("Migrated to version %d", version), nil

	case "force":
		// Clears the dirty flag after a failed migration was fixed by hand.
		version, err := versionArg(args)
		if err != nil {
			return "", err
		}
		if err := m.Force(int(version)); err != nil {
			return "", fmt.Errorf("force version %d: %w", version, err)
		}
		return fmt.Sprintf("Forced version %d", version), nil

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return "No migrations have been applied yet", nil
		}
		if err != nil {
			return "", fmt.Errorf("read migration version: %w", err)
		}
		if dirty {
			return fmt.Sprintf("Current migration version: %d (dirty)", version), nil
		}
		return fmt.Sprintf("Current migration version: %d", version), nil
	}
	return "", errUsage
}

func versionArg(args []string) (uint64, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a version number", args[0])
	}
	version, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid version number %q: %w", args[1], err)
	}
	return version, nil
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up        apply all pending migrations")
	fmt.Println("  down      roll back the last migration")
	fmt.Println("  goto N    migrate to version N")
	fmt.Println("  force N   set version N and clear the dirty flag")
	fmt.Println("  status    show the current migration version")
}

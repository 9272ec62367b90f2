package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"fliptowin/internal/database"
	"fliptowin/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New("coinflip-migrate", getEnv("APP_ENV", "local"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	command := os.Args[1]

	dbCfg := database.Config{
		Host:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
		Port:     getEnv("BLUEPRINT_DB_PORT", "5432"),
		Database: getEnv("BLUEPRINT_DB_DATABASE", "coinflip"),
		Username: getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		Password: getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
		Schema:   getEnv("BLUEPRINT_DB_SCHEMA", "public"),
		SSLMode:  getEnv("BLUEPRINT_DB_SSLMODE", "disable"),
	}
	dbURL := dbCfg.URL()
	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	switch command {
	case "up":
		log.Info("running migrations", zap.String("path", migrationsPath))
		if err := database.RunMigrations(dbURL, migrationsPath); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
		log.Info("migrations completed successfully")

	case "down":
		log.Info("rolling back last migration")
		if err := database.RollbackMigration(dbURL, migrationsPath); err != nil {
			log.Fatal("rollback failed", zap.Error(err))
		}
		log.Info("rollback completed successfully")

	case "version":
		version, dirty, err := database.GetMigrationVersion(dbURL, migrationsPath)
		if err != nil {
			log.Fatal("failed to get version", zap.Error(err))
		}
		if dirty {
			log.Warn("current version is dirty, needs manual intervention", zap.Uint("version", version))
		} else {
			log.Info("current version", zap.Uint("version", version))
		}

	case "create":
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate create <migration_name>")
		}
		up, down, err := createMigration(migrationsPath, os.Args[2], time.Now())
		if err != nil {
			log.Fatal("failed to create migration", zap.Error(err))
		}
		log.Info("created migration files", zap.String("up", up), zap.String("down", down))

	default:
		log.Error("unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

// createMigration writes the next numbered up/down pair into dir.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("read migrations directory: %w", err)
	}

	nextVersion := 1
	for _, file := range files {
		var version int
		if _, err := fmt.Sscanf(file.Name(), "%06d_", &version); err == nil && version >= nextVersion {
			nextVersion = version + 1
		}
	}

	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", nextVersion, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", nextVersion, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n-- Add your SQL here\n", name, now.UTC().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		return "", "", fmt.Errorf("create up migration: %w", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n-- Add your rollback SQL here\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		return "", "", fmt.Errorf("create down migration: %w", err)
	}
	return upFile, downFile, nil
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BLUEPRINT_DB_HOST       Database host (default: localhost)")
	fmt.Println("  BLUEPRINT_DB_PORT       Database port (default: 5432)")
	fmt.Println("  BLUEPRINT_DB_DATABASE   Database name (default: coinflip)")
	fmt.Println("  BLUEPRINT_DB_USERNAME   Database user (default: postgres)")
	fmt.Println("  BLUEPRINT_DB_PASSWORD   Database password (default: postgres)")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: ./migrations)")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

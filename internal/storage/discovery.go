package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/sgcc/internal/config"
)

// DBPathEnv overrides database discovery. Tests set it to isolate themselves
// from any project in the working directory.
const DBPathEnv = "SGCC_DB_PATH"

// DiscoverDatabase looks for .sgcc/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Parent directories are not searched, so a project nested inside another
// never picks up the outer project's database.
//
// If SGCC_DB_PATH is set it is used directly without discovery.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv(DBPathEnv); dbPath != "" {
		// Allow special values like ":memory:" or explicit paths
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .sgcc/*.db in the specified directory only.
func discoverDatabaseInDir(dir string) (string, error) {
	projectDir := filepath.Join(dir, config.ProjectDir)

	if info, err := os.Stat(projectDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(projectDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(projectDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'sgcc init' to initialize a project in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		config.ProjectDir, dir)
}

// GetProjectRoot returns the project root directory for a given database path.
// The project root is the directory containing the .sgcc/ directory.
//
// Example:
//
//	dbPath: /home/user/dedup/.sgcc/dedup.db
//	returns: /home/user/dedup
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != config.ProjectDir {
		return "", fmt.Errorf(
			"database must be in a %s/ directory, got: %s",
			config.ProjectDir, dbPath)
	}

	return filepath.Dir(dbDir), nil
}

// InitProject creates a new .sgcc directory with an example config file.
// Returns the path of the database to open; it is created on first connection.
func InitProject(projectDir, projectName string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	sgccDir := filepath.Join(projectDir, config.ProjectDir)
	if err := os.MkdirAll(sgccDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", config.ProjectDir, err)
	}

	dbName := projectName
	if dbName == "" {
		absDir, err := filepath.Abs(projectDir)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		dbName = filepath.Base(absDir)
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(sgccDir, dbName)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	// Keep an existing config; users may have edited it before re-running init.
	configPath := filepath.Join(sgccDir, config.ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(config.ExampleConfigFile()), 0644); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", config.ConfigFileName, err)
		}
	}

	return dbPath, nil
}

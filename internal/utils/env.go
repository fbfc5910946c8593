package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kelsos/ledger-sync/internal/logger"
)

// LoadEnvironment loads environment variables from .env files.
// Explicit files go first so they win over the current directory and the executable's directory;
// variables already set in the process are never overridden.
func LoadEnvironment(files ...string) error {
	for _, file := range files {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return err
		}
		logger.Info("Loaded environment from %s", file)
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found in current directory or error loading it: %v", err)
	} else {
		logger.Info("Successfully loaded .env file from current directory")
	}

	execPath, err := os.Executable()
	if err == nil {
		execDir := filepath.Dir(execPath)
		envPath := filepath.Join(execDir, ".env")
		if err := godotenv.Load(envPath); err != nil {
			logger.Debug("No .env file found in app directory (%s) or error loading it: %v", execDir, err)
		} else {
			logger.Info("Successfully loaded .env file from app directory: %s", execDir)
		}
	} else {
		logger.Debug("Could not determine executable path: %v", err)
	}

	return nil
}

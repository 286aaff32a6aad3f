package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	DataPath            string
	LogDir              string
	RecordsFile         string
	ProfilePath         string
	EnableMermaidCharts bool
	Profile             AnalysisProfile
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for MCP servers)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}

	recordsFile := getEnv("RECORDS_FILE", filepath.Join(dataPath, "records.jsonl"))
	if !filepath.IsAbs(recordsFile) && os.Getenv("RECORDS_FILE") != "" {
		recordsFile = filepath.Join(dataPath, recordsFile)
	}

	cfg := &AppConfig{
		DataPath:            dataPath,
		LogDir:              logDir,
		RecordsFile:         recordsFile,
		ProfilePath:         getEnv("ANALYSIS_PROFILE", ""),
		EnableMermaidCharts: getEnvBool("ENABLE_MERMAID_CHARTS", false),
		Profile:             DefaultProfile(),
	}

	// 4. Analysis profile
	if cfg.ProfilePath != "" {
		profile, err := LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load analysis profile: %w", err)
		}
		cfg.Profile = *profile
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Library LibraryConfig
	Server  ServerConfig
	Auth    AuthConfig
	Speech  SpeechConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds server-state storage configuration. The base path hosts
// the key-value store, the search index, covers, and key material.
type DataConfig struct {
	BasePath string
}

// LibraryConfig holds book library configuration.
type LibraryConfig struct {
	// Path is the directory scanned for books. May be empty until set via the API.
	Path string
	// Watch enables filesystem watching for incremental scans.
	Watch bool
	// CalibreImport reads metadata.db when the library is a Calibre tree.
	CalibreImport bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name           string
	Port           string        // Server port (default: 8080)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	AdvertiseMDNS  bool          // Advertise via Avahi/Zeroconf (default: true)
	EnableMPRIS    bool          // Publish media controls on the session bus (default: false)
	RateLimitRPS   float64       // Per-client request rate (default: 20)
	RateLimitBurst int           // Per-client burst (default: 40)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled turns the owner login requirement on. Off is reasonable on a trusted LAN.
	Enabled bool
	// Token key material lives in the data dir (auth.LoadOrGenerateKey), not here.
	AccessTokenDuration  time.Duration // e.g., 15m
	RefreshTokenDuration time.Duration // e.g., 720h (30 days)
}

// SpeechConfig holds narration engine configuration.
type SpeechConfig struct {
	// Engine picks the narration backend: auto, google, espeak, or off.
	Engine string
	// VoiceLocalePrefix narrows the default-voice candidates, e.g. "en-".
	VoiceLocalePrefix string
	// VoiceLocaleExclude drops one generic variant from the preferred subset, e.g. "en-US".
	VoiceLocaleExclude string
	// EspeakPath overrides espeak-ng binary discovery.
	EspeakPath string
	// ProgressInterval is how often engines report playback progress.
	ProgressInterval time.Duration
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for server state storage")
	libraryPath := flag.String("library-path", "", "Path to the book library")
	libraryWatch := flag.String("library-watch", "", "Watch the library for changes (default: true)")
	calibreImport := flag.String("calibre-import", "", "Read Calibre metadata.db when present (default: true)")
	serverName := flag.String("server-name", "", "Name for the server")
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise via Avahi/Zeroconf (default: true)")
	enableMPRIS := flag.String("enable-mpris", "", "Expose MPRIS controls on the session bus (default: false)")

	authEnabled := flag.String("auth-enabled", "", "Require owner login (default: true)")
	accessTokenDuration := flag.String("access-token-duration", "", "Access token lifetime (e.g., 15m)")
	refreshTokenDuration := flag.String("refresh-token-duration", "", "Refresh token lifetime (e.g., 720h)")

	speechEngine := flag.String("speech-engine", "", "Narration engine: auto, google, espeak, off (default: auto)")
	voiceLocalePrefix := flag.String("voice-locale-prefix", "", "Preferred voice locale prefix (default: en-)")
	voiceLocaleExclude := flag.String("voice-locale-exclude", "", "Generic locale excluded from the preferred subset (default: en-US)")
	espeakPath := flag.String("espeak-path", "", "Path to espeak-ng binary (default: auto-detect)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Library: LibraryConfig{
			Path:          getConfigValue(*libraryPath, "LIBRARY_PATH", ""),
			Watch:         getBoolConfigValue(*libraryWatch, "LIBRARY_WATCH", true),
			CalibreImport: getBoolConfigValue(*calibreImport, "CALIBRE_IMPORT", true),
		},
		Server: ServerConfig{
			Name:           getConfigValue(*serverName, "SERVER_NAME", "Aloud Server"),
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AdvertiseMDNS:  getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", true),
			EnableMPRIS:    getBoolConfigValue(*enableMPRIS, "ENABLE_MPRIS", false),
			RateLimitRPS:   getFloatConfigValue("", "RATE_LIMIT_RPS", 20),
			RateLimitBurst: getIntConfigValue("", "RATE_LIMIT_BURST", 40),
		},
		Auth: AuthConfig{
			Enabled: getBoolConfigValue(*authEnabled, "AUTH_ENABLED", true),
		},
		Speech: SpeechConfig{
			Engine:             getConfigValue(*speechEngine, "SPEECH_ENGINE", "auto"),
			VoiceLocalePrefix:  getConfigValue(*voiceLocalePrefix, "VOICE_LOCALE_PREFIX", "en-"),
			VoiceLocaleExclude: getConfigValue(*voiceLocaleExclude, "VOICE_LOCALE_EXCLUDE", "en-US"),
			EspeakPath:         getConfigValue(*espeakPath, "ESPEAK_PATH", ""),
		},
	}

	// Parse auth durations.
	accessDurationStr := getConfigValue(*accessTokenDuration, "ACCESS_TOKEN_DURATION", "15m")
	accessDuration, err := time.ParseDuration(accessDurationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid access token duration %q: %w", accessDurationStr, err)
	}
	cfg.Auth.AccessTokenDuration = accessDuration

	refreshDurationStr := getConfigValue(*refreshTokenDuration, "REFRESH_TOKEN_DURATION", "720h")
	refreshDuration, err := time.ParseDuration(refreshDurationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token duration %q: %w", refreshDurationStr, err)
	}
	cfg.Auth.RefreshTokenDuration = refreshDuration

	// Parse server timeouts.
	cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	cfg.Speech.ProgressInterval, err = parseDurationValue("", "SPEECH_PROGRESS_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}

	// Expand and validate paths.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.expandLibraryPath(); err != nil {
		return nil, fmt.Errorf("invalid library path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	validEngines := map[string]bool{
		"auto":   true,
		"google": true,
		"espeak": true,
		"off":    true,
	}
	if !validEngines[c.Speech.Engine] {
		return fmt.Errorf("invalid speech engine: %s (must be auto, google, espeak, or off)", c.Speech.Engine)
	}

	// Library path can be empty - the library can be configured via the API.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Aloud", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandLibraryPath expands ~ and makes the path absolute.
// If empty, leaves it empty so the library can be set up via the API.
func (c *Config) expandLibraryPath() error {
	if c.Library.Path == "" {
		return nil
	}

	expanded, err := expandPath(c.Library.Path, "")
	if err != nil {
		return err
	}
	c.Library.Path = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves flag/env/default and parses the result as a duration.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	raw := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(strings.ReplaceAll(envKey, "_", " ")), raw, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Real env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}

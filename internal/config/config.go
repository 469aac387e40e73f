// Package config loads runtime options for talkwire from an INI file merged
// with TALKWIRE_* environment overrides (env wins).
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const configFile = "config/talkwire.ini"

// ServerConfig describes runtime options for the daemon.
type ServerConfig struct {
	ListenAddr string
	LogFile    string
	LogLevel   string

	AuthSecret string
	TokenTTL   time.Duration

	// Storage: DSNs switch the engine to Postgres, otherwise local SQLite
	// files are used.
	ChatDBPath   string
	ChatDBDSN    string
	IdentityPath string
	IdentityDSN  string

	// Generator selection: loopback|scripted|upstream
	Generator      string
	ScriptPath     string
	LoopbackDelay  time.Duration
	UpstreamAPIKey string
	UpstreamURL    string
	UpstreamModel  string

	// Streaming behaviour
	StreamIdleTimeout time.Duration
	SSEPingInterval   time.Duration
}

// Load reads the config file under root (missing file is fine, env and
// defaults still apply) and applies environment overrides.
func Load(root string) (ServerConfig, error) {
	values, err := parseINI(filepath.Join(root, configFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return ServerConfig{}, fmt.Errorf("load config: %w", err)
		}
		values = map[string]string{}
	}

	cfg := ServerConfig{
		ListenAddr:     firstNonEmpty(os.Getenv("TALKWIRE_LISTEN_ADDR"), values["listen_addr"], ":8085"),
		LogFile:        firstNonEmpty(os.Getenv("TALKWIRE_LOG_FILE"), values["log_file"]),
		LogLevel:       firstNonEmpty(os.Getenv("TALKWIRE_LOG_LEVEL"), values["log_level"], "info"),
		AuthSecret:     firstNonEmpty(os.Getenv("TALKWIRE_AUTH_SECRET"), values["auth_secret"], "talkwire-dev-secret"),
		ChatDBPath:     firstNonEmpty(os.Getenv("TALKWIRE_CHAT_DB_PATH"), values["chat_db_path"], DefaultChatDBPath()),
		ChatDBDSN:      firstNonEmpty(os.Getenv("TALKWIRE_CHAT_DB_DSN"), values["chat_db_dsn"]),
		IdentityPath:   firstNonEmpty(os.Getenv("TALKWIRE_IDENTITY_PATH"), values["identity_path"], DefaultIdentityPath()),
		IdentityDSN:    firstNonEmpty(os.Getenv("TALKWIRE_IDENTITY_DSN"), values["identity_dsn"]),
		Generator:      strings.ToLower(firstNonEmpty(os.Getenv("TALKWIRE_GENERATOR"), values["generator"], "loopback")),
		ScriptPath:     firstNonEmpty(os.Getenv("TALKWIRE_SCRIPT_PATH"), values["script_path"]),
		UpstreamAPIKey: firstNonEmpty(os.Getenv("TALKWIRE_UPSTREAM_API_KEY"), values["upstream_api_key"]),
		UpstreamURL:    firstNonEmpty(os.Getenv("TALKWIRE_UPSTREAM_BASE_URL"), values["upstream_base_url"]),
		UpstreamModel:  firstNonEmpty(os.Getenv("TALKWIRE_UPSTREAM_MODEL"), values["upstream_model"]),
	}
	cfg.TokenTTL = parseOptionalDuration(firstNonEmpty(os.Getenv("TALKWIRE_TOKEN_TTL"), values["token_ttl"]), 24*time.Hour)
	cfg.LoopbackDelay = parseOptionalDuration(firstNonEmpty(os.Getenv("TALKWIRE_LOOPBACK_DELAY"), values["loopback_delay"]), 0)
	cfg.StreamIdleTimeout = parseOptionalDuration(firstNonEmpty(os.Getenv("TALKWIRE_STREAM_IDLE_TIMEOUT"), values["stream_idle_timeout"]), 60*time.Second)
	cfg.SSEPingInterval = parseOptionalDuration(firstNonEmpty(os.Getenv("TALKWIRE_SSE_PING_INTERVAL"), values["sse_ping_interval"]), 0)

	switch cfg.Generator {
	case "loopback", "scripted", "upstream":
	default:
		return ServerConfig{}, fmt.Errorf("load config: unknown generator %q", cfg.Generator)
	}
	if cfg.Generator == "scripted" && cfg.ScriptPath == "" {
		return ServerConfig{}, fmt.Errorf("load config: scripted generator requires script_path")
	}
	if cfg.Generator == "upstream" && cfg.UpstreamAPIKey == "" {
		return ServerConfig{}, fmt.Errorf("load config: upstream generator requires upstream_api_key")
	}
	return cfg, nil
}

// DefaultChatDBPath locates the local chat database.
func DefaultChatDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat.db"
	}
	return filepath.Join(home, ".talkwire", "chat.db")
}

// DefaultIdentityPath locates the local identity database.
func DefaultIdentityPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "identity.db"
	}
	return filepath.Join(home, ".talkwire", "identity.db")
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseOptionalDuration(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

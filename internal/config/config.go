package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv reads .env outside production only (in containers/prod the config
// comes from real env vars). Walks up a few directories so tests in nested
// packages still pick it up.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// Config holds the chat core settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// Backend endpoints
	APIBaseURL string `yaml:"api_base_url"`
	HubURL     string `yaml:"hub_url"`

	// Pagination
	ConversationPageSize int `yaml:"conversation_page_size"`
	MessagePageSize      int `yaml:"message_page_size"`

	// Timers (seconds in YAML, durations in code)
	TypingTTL        time.Duration `yaml:"-"`
	ReadMarkDebounce time.Duration `yaml:"-"`
	RequestTimeout   time.Duration `yaml:"-"`

	// Reconnect backoff bounds
	ReconnectMinDelay time.Duration `yaml:"-"`
	ReconnectMaxDelay time.Duration `yaml:"-"`

	// Mock server (dev/test backend)
	MockServerAddr     string `yaml:"mock_server_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	LogLevel string `yaml:"log_level"`
}

// yamlConfig is the intermediate parse target (integer seconds / millis).
type yamlConfig struct {
	APIBaseURL           string `yaml:"api_base_url"`
	HubURL               string `yaml:"hub_url"`
	ConversationPageSize int    `yaml:"conversation_page_size"`
	MessagePageSize      int    `yaml:"message_page_size"`
	TypingTTLSeconds     int    `yaml:"typing_ttl_seconds"`
	ReadMarkDebounceMS   int    `yaml:"read_mark_debounce_ms"`
	RequestTimeout       int    `yaml:"request_timeout"`
	ReconnectMinDelayMS  int    `yaml:"reconnect_min_delay_ms"`
	ReconnectMaxDelayMS  int    `yaml:"reconnect_max_delay_ms"`
	MockServerAddr       string `yaml:"mock_server_addr"`
	CORSAllowedOrigins   string `yaml:"cors_allowed_origins"`
	LogLevel             string `yaml:"log_level"`
}

// Load loads configuration: .env first (if present), then YAML, then env
// overrides (env wins).
func Load() *Config {
	loadEnv()
	yc := yamlConfig{
		APIBaseURL:           "http://localhost:8090/api",
		HubURL:               "ws://localhost:8090/hub",
		ConversationPageSize: 20,
		MessagePageSize:      20,
		TypingTTLSeconds:     3,
		ReadMarkDebounceMS:   400,
		RequestTimeout:       10,
		ReconnectMinDelayMS:  500,
		ReconnectMaxDelayMS:  15000,
		MockServerAddr:       ":8090",
		CORSAllowedOrigins:   "*",
		LogLevel:             "info",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/chatcore.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	cfg := &Config{
		APIBaseURL:           envStr("API_BASE_URL", yc.APIBaseURL),
		HubURL:               envStr("HUB_URL", yc.HubURL),
		ConversationPageSize: envInt("CONVERSATION_PAGE_SIZE", yc.ConversationPageSize),
		MessagePageSize:      envInt("MESSAGE_PAGE_SIZE", yc.MessagePageSize),
		TypingTTL:            time.Duration(envInt("TYPING_TTL_SECONDS", yc.TypingTTLSeconds)) * time.Second,
		ReadMarkDebounce:     time.Duration(envInt("READ_MARK_DEBOUNCE_MS", yc.ReadMarkDebounceMS)) * time.Millisecond,
		RequestTimeout:       time.Duration(envInt("REQUEST_TIMEOUT", yc.RequestTimeout)) * time.Second,
		ReconnectMinDelay:    time.Duration(envInt("RECONNECT_MIN_DELAY_MS", yc.ReconnectMinDelayMS)) * time.Millisecond,
		ReconnectMaxDelay:    time.Duration(envInt("RECONNECT_MAX_DELAY_MS", yc.ReconnectMaxDelayMS)) * time.Millisecond,
		MockServerAddr:       envStr("MOCK_SERVER_ADDR", yc.MockServerAddr),
		CORSAllowedOrigins:   envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		LogLevel:             envStr("LOG_LEVEL", yc.LogLevel),
	}

	if cfg.ConversationPageSize <= 0 {
		cfg.ConversationPageSize = 20
	}
	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = 20
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 3 * time.Second
	}
	if cfg.ReconnectMinDelay <= 0 {
		cfg.ReconnectMinDelay = 500 * time.Millisecond
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectMinDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectMinDelay
	}

	return cfg
}

// envStr returns the env var value or fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the numeric env var value or fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

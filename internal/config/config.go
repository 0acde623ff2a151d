package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	GateBaseURL string
	GateWSURL   string
	GateToken   string

	BotPrefixes []string

	RedisURL    string
	DatabaseURL string

	APIAddr string
	// APIKeys holds "key:name" or "key:name:admin" entries.
	APIKeys []APIKey

	Admins       []string
	AllowedChats []string

	MessageDir string

	SubbotCost int64
	SubbotMax  int
}

type APIKey struct {
	Key   string
	Name  string
	Admin bool
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		APIAddr:    ":8080",
		SubbotCost: 50000,
		SubbotMax:  1,
	}

	cfg.GateBaseURL = strings.TrimSpace(os.Getenv("GATE_BASE_URL"))
	cfg.GateWSURL = strings.TrimSpace(os.Getenv("GATE_WS_URL"))
	cfg.GateToken = strings.TrimSpace(os.Getenv("GATE_TOKEN"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	cfg.BotPrefixes = splitList(os.Getenv("BOT_PREFIXES"))
	if len(cfg.BotPrefixes) == 0 {
		cfg.BotPrefixes = []string{"!"}
	}
	// The empty catch-all prefix must be opted into explicitly.
	if v := strings.TrimSpace(os.Getenv("BOT_PREFIX_CATCHALL")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			cfg.BotPrefixes = append(cfg.BotPrefixes, "")
		}
	}

	if v := strings.TrimSpace(os.Getenv("API_ADDR")); v != "" {
		cfg.APIAddr = v
	}
	for _, entry := range splitList(os.Getenv("API_KEYS")) {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || parts[0] == "" {
			return nil, errors.New("API_KEYS entries must be key:name or key:name:admin")
		}
		k := APIKey{Key: parts[0], Name: parts[1]}
		if len(parts) > 2 && strings.EqualFold(parts[2], "admin") {
			k.Admin = true
		}
		cfg.APIKeys = append(cfg.APIKeys, k)
	}

	cfg.Admins = splitList(os.Getenv("ADMINS"))
	cfg.AllowedChats = splitList(os.Getenv("ALLOWED_CHATS"))

	if v := strings.TrimSpace(os.Getenv("SUBBOT_COST")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.SubbotCost = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUBBOT_MAX")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SubbotMax = n
		}
	}

	if cfg.GateBaseURL == "" {
		return nil, errors.New("GATE_BASE_URL is required")
	}
	if cfg.GateWSURL == "" {
		return nil, errors.New("GATE_WS_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dreamlog/backend/internal/crypto"
	"dreamlog/backend/internal/llm/contract"
)

const (
	defaultBackends       = "lexicon"
	defaultBackendTimeout = 8 * time.Second
	defaultTemperature    = 0.3
	defaultMaxTokens      = 600
)

type Config struct {
	DatabaseURL    string
	Port           string
	JWTSecret      string
	FrontendOrigin string
	RedisURL       string
	MasterKey      string
	LogLevel       string
	LogDevelopment bool
	Dream          DreamConfig
}

// DreamConfig is resolved once at start-up and never mutated afterwards.
type DreamConfig struct {
	Backends       []contract.BackendConfig
	BackendTimeout time.Duration
	Seed           uint64
	Seeded         bool
	SymbolsPath    string
	LexiconPath    string
}

// provider describes how a remote backend reads its credentials.
type provider struct {
	keyVar, modelVar, baseURLVar string
	defaultModel                 string
}

var providers = map[string]provider{
	"openai":    {keyVar: "OPENAI_API_KEY", modelVar: "OPENAI_MODEL", baseURLVar: "OPENAI_BASE_URL", defaultModel: "gpt-4o-mini"},
	"claude":    {keyVar: "ANTHROPIC_API_KEY", modelVar: "ANTHROPIC_MODEL", defaultModel: "claude-3-5-haiku-latest"},
	"anthropic": {keyVar: "ANTHROPIC_API_KEY", modelVar: "ANTHROPIC_MODEL", defaultModel: "claude-3-5-haiku-latest"},
	"cohere":    {keyVar: "COHERE_API_KEY", modelVar: "COHERE_MODEL", defaultModel: "command-r"},
	"gemini":    {keyVar: "GEMINI_API_KEY", modelVar: "GEMINI_MODEL", defaultModel: "gemini-2.0-flash"},
	"google":    {keyVar: "GEMINI_API_KEY", modelVar: "GEMINI_MODEL", defaultModel: "gemini-2.0-flash"},
}

func Load() (Config, error) {
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseURL:    getenv("DATABASE_URL"),
		Port:           getenv("PORT"),
		JWTSecret:      getenv("JWT_SECRET"),
		FrontendOrigin: getenv("FRONTEND_ORIGIN"),
		RedisURL:       getenv("REDIS_URL"),
		MasterKey:      getenv("MASTER_KEY"),
		LogLevel:       getenv("LOG_LEVEL"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.FrontendOrigin == "" {
		cfg.FrontendOrigin = "http://localhost:5173"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if value := getenv("LOG_DEV"); value != "" {
		dev, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("LOG_DEV: %w", err)
		}
		cfg.LogDevelopment = dev
	}

	secret, err := crypto.Reveal(cfg.MasterKey, cfg.JWTSecret)
	if err != nil {
		return Config{}, fmt.Errorf("JWT_SECRET: %w", err)
	}
	cfg.JWTSecret = secret

	dream, err := loadDream(getenv, cfg.MasterKey)
	if err != nil {
		return Config{}, err
	}
	cfg.Dream = dream
	return cfg, nil
}

func loadDream(getenv func(string) string, masterKey string) (DreamConfig, error) {
	dream := DreamConfig{
		BackendTimeout: defaultBackendTimeout,
		SymbolsPath:    getenv("DREAM_SYMBOLS_PATH"),
		LexiconPath:    getenv("DREAM_LEXICON_PATH"),
	}
	if value := getenv("DREAM_BACKEND_TIMEOUT"); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			return DreamConfig{}, fmt.Errorf("DREAM_BACKEND_TIMEOUT: invalid duration %q", value)
		}
		dream.BackendTimeout = timeout
	}
	if value := getenv("DREAM_RANDOM_SEED"); value != "" {
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return DreamConfig{}, fmt.Errorf("DREAM_RANDOM_SEED: %w", err)
		}
		dream.Seed, dream.Seeded = seed, true
	}

	temperature := defaultTemperature
	if value := getenv("DREAM_TEMPERATURE"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 || parsed > 2 {
			return DreamConfig{}, fmt.Errorf("DREAM_TEMPERATURE: invalid value %q", value)
		}
		temperature = parsed
	}
	maxTokens := defaultMaxTokens
	if value := getenv("DREAM_MAX_TOKENS"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return DreamConfig{}, fmt.Errorf("DREAM_MAX_TOKENS: invalid value %q", value)
		}
		maxTokens = parsed
	}

	names := getenv("DREAM_BACKENDS")
	if strings.TrimSpace(names) == "" {
		names = defaultBackends
	}
	for _, name := range strings.Split(names, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		backend := contract.BackendConfig{
			Name:        name,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			LexiconPath: dream.LexiconPath,
		}
		if p, ok := providers[name]; ok {
			key, err := crypto.Reveal(masterKey, getenv(p.keyVar))
			if err != nil {
				return DreamConfig{}, fmt.Errorf("%s: %w", p.keyVar, err)
			}
			backend.APIKey = key
			backend.ModelName = getenv(p.modelVar)
			if backend.ModelName == "" {
				backend.ModelName = p.defaultModel
			}
			if p.baseURLVar != "" {
				backend.BaseURL = getenv(p.baseURLVar)
			}
		}
		dream.Backends = append(dream.Backends, backend)
	}
	return dream, nil
}

// BackendNames lists the configured chain in order.
func (d DreamConfig) BackendNames() []string {
	names := make([]string, 0, len(d.Backends))
	for _, backend := range d.Backends {
		names = append(names, backend.Name)
	}
	return names
}

package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	DBDriver string `mapstructure:"DB_DRIVER"` // "postgres" or "sqlite"
	// DatabaseURL is a postgres DSN or a sqlite file path
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTAccessExpiry  time.Duration `mapstructure:"JWT_ACCESS_EXPIRY"`
	JWTRefreshExpiry time.Duration `mapstructure:"JWT_REFRESH_EXPIRY"`
	EncryptionKey    string        `mapstructure:"ENCRYPTION_KEY"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`
	GoogleProjectID    string `mapstructure:"GOOGLE_PROJECT_ID"`
	GooglePubSubTopic  string `mapstructure:"GOOGLE_PUBSUB_TOPIC"`
	GoogleCredentials  string `mapstructure:"GOOGLE_CREDENTIALS"`
	// PubSubSubscription enables the pull subscriber when set
	PubSubSubscription  string `mapstructure:"GOOGLE_PUBSUB_SUBSCRIPTION"`
	FirebaseCredentials string `mapstructure:"FIREBASE_CREDENTIALS"`

	InstagramClientID     string `mapstructure:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string `mapstructure:"INSTAGRAM_CLIENT_SECRET"`
	InstagramRedirectURI  string `mapstructure:"INSTAGRAM_REDIRECT_URI"`
	InstagramVerifyToken  string `mapstructure:"INSTAGRAM_VERIFY_TOKEN"`

	LLMServerURL  string `mapstructure:"LLM_SERVER_URL"`
	AIProvider    string `mapstructure:"AI_PROVIDER"`
	GeminiApiKey  string `mapstructure:"GEMINI_API_KEY"`
	OllamaBaseURL string `mapstructure:"OLLAMA_BASE_URL"`
	OllamaModel   string `mapstructure:"OLLAMA_MODEL"`

	ChromaAPIKey   string `mapstructure:"CHROMA_API_KEY"`
	ChromaTenant   string `mapstructure:"CHROMA_TENANT"`
	ChromaDatabase string `mapstructure:"CHROMA_DATABASE"`

	NatsURL string `mapstructure:"NATS_URL"`

	ProviderTimeout   time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	EnrichmentTimeout time.Duration `mapstructure:"ENRICHMENT_TIMEOUT"`
	IMAPPollInterval  time.Duration `mapstructure:"IMAP_POLL_INTERVAL"`
	WatchRenewEvery   time.Duration `mapstructure:"WATCH_RENEW_INTERVAL"`
}

var defaults = map[string]any{
	"PORT":                       "8080",
	"DB_DRIVER":                  "postgres",
	"DATABASE_URL":               "host=localhost user=postgres password=postgres dbname=cochat port=5432 sslmode=disable",
	"JWT_SECRET":                 "your-secret-key-change-in-production",
	"JWT_ACCESS_EXPIRY":          "15m",
	"JWT_REFRESH_EXPIRY":         "168h",
	"ENCRYPTION_KEY":             "",
	"GOOGLE_CLIENT_ID":           "",
	"GOOGLE_CLIENT_SECRET":       "",
	"GOOGLE_REDIRECT_URI":        "http://localhost:8080/api/messengers/gmail/callback",
	"GOOGLE_PROJECT_ID":          "",
	"GOOGLE_PUBSUB_TOPIC":        "",
	"GOOGLE_CREDENTIALS":         "",
	"GOOGLE_PUBSUB_SUBSCRIPTION": "",
	"FIREBASE_CREDENTIALS":       "",
	"INSTAGRAM_CLIENT_ID":        "",
	"INSTAGRAM_CLIENT_SECRET":    "",
	"INSTAGRAM_REDIRECT_URI":     "http://localhost:8080/api/messengers/instagram/callback",
	"INSTAGRAM_VERIFY_TOKEN":     "",
	"LLM_SERVER_URL":             "",
	"AI_PROVIDER":                "auto",
	"GEMINI_API_KEY":             "",
	"OLLAMA_BASE_URL":            "http://localhost:11434",
	"OLLAMA_MODEL":               "llama3.2",
	"CHROMA_API_KEY":             "",
	"CHROMA_TENANT":              "",
	"CHROMA_DATABASE":            "",
	"NATS_URL":                   "",
	"PROVIDER_TIMEOUT":           "30s",
	"ENRICHMENT_TIMEOUT":         "20s",
	"IMAP_POLL_INTERVAL":         "2m",
	"WATCH_RENEW_INTERVAL":       "24h",
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := load(viper.New())
	if err != nil {
		log.Fatalf("[Config] failed to load configuration: %v", err)
	}
	return cfg
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.DBDriver = strings.ToLower(cfg.DBDriver)
	return cfg, nil
}

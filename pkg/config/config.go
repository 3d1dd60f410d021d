package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Feed backends
const (
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
	BackendMemory    = "memory"
)

// Auth modes for the /api/v1 group
const (
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

type Config struct {
	Port            string         `yaml:"port" validate:"required,numeric"`
	Env             string         `yaml:"env"`
	PublicBaseURL   string         `yaml:"public_base_url" validate:"omitempty,url"`
	PostgresConnStr string         `yaml:"postgres_conn_str"`
	Feed            FeedConfig     `yaml:"feed"`
	Firebase        FirebaseConfig `yaml:"firebase"`
	Mongo           MongoConfig    `yaml:"mongo"`
	Auth            AuthConfig     `yaml:"auth"`
}

type FeedConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=firestore mongo memory"`
	Collection string `yaml:"collection" validate:"required"`
	WindowSize int    `yaml:"window_size" validate:"min=1,max=500"`
}

type FirebaseConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
	StorageBucket   string `yaml:"storage_bucket"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type AuthConfig struct {
	Mode      string `yaml:"mode" validate:"oneof=jwt firebase"`
	JWTSecret string `yaml:"jwt_secret" validate:"required"`
}

func defaults() *Config {
	return &Config{
		Port: "8080",
		Env:  "development",
		Feed: FeedConfig{
			Backend:    BackendMemory,
			Collection: "messages",
			WindowSize: 12,
		},
		Mongo: MongoConfig{Database: "livechat"},
		Auth: AuthConfig{
			Mode:      AuthJWT,
			JWTSecret: "supersecretjwtkey",
		},
	}
}

// Load reads .env, then the optional YAML file at path, then the environment.
// Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		glog.V(1).Infof("[config]no .env file, using the environment\n")
	}

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.PostgresConnStr = getEnv("POSTGRES_CONN_STR", cfg.PostgresConnStr)
	cfg.Feed.Backend = getEnv("FEED_BACKEND", cfg.Feed.Backend)
	cfg.Feed.Collection = getEnv("FEED_COLLECTION", cfg.Feed.Collection)
	cfg.Firebase.CredentialsPath = getEnv("FIREBASE_CREDENTIALS_PATH", cfg.Firebase.CredentialsPath)
	cfg.Firebase.StorageBucket = getEnv("FIREBASE_STORAGE_BUCKET", cfg.Firebase.StorageBucket)
	cfg.Mongo.URI = getEnv("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", cfg.Mongo.Database)
	cfg.Auth.Mode = getEnv("AUTH_MODE", cfg.Auth.Mode)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)

	windowSize, err := getEnvInt("FEED_WINDOW_SIZE", cfg.Feed.WindowSize)
	if err != nil {
		return nil, err
	}
	cfg.Feed.WindowSize = windowSize

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules and the settings each backend needs
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Feed.Backend {
	case BackendFirestore:
		if c.Firebase.CredentialsPath == "" {
			return errors.New("invalid config: firestore backend needs FIREBASE_CREDENTIALS_PATH")
		}
		if c.Firebase.StorageBucket == "" {
			return errors.New("invalid config: firestore backend needs FIREBASE_STORAGE_BUCKET")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return errors.New("invalid config: mongo backend needs MONGO_URI")
		}
	}
	if c.Auth.Mode == AuthFirebase && c.Firebase.CredentialsPath == "" {
		return errors.New("invalid config: firebase auth needs FIREBASE_CREDENTIALS_PATH")
	}
	return nil
}

// NeedsFirebase reports whether the Firebase app must be initialized
func (c *Config) NeedsFirebase() bool {
	return c.Feed.Backend == BackendFirestore || c.Firebase.CredentialsPath != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Package config loads worker settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBURL    string
	Storage  StorageConfig
	AWS      AWSConfig
	RabbitMQ RabbitMQConfig
	Gemini   GeminiConfig
	GitHub   GitHubConfig
	Pipeline PipelineConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

// StorageConfig points at the bucket holding every pipeline object. When
// R2AccountID is set the S3 client targets Cloudflare R2 instead of AWS.
type StorageConfig struct {
	Bucket      string
	R2AccountID string
	AccessKey   string
	SecretKey   string
}

type AWSConfig struct {
	Region string
}

type RabbitMQConfig struct {
	URL      string
	Queue    string
	Exchange string
	Workers  int
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	SynthesisModel string
}

// GitHubConfig holds either an inline token or the Secrets Manager location of one.
type GitHubConfig struct {
	Token     string
	SecretARN string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type PipelineConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
	MaxOCRWait   time.Duration
	MaxRepos     int
	MaxSelected  int
	StaleAfter   time.Duration
}

type HTTPConfig struct {
	Addr string
}

type LogConfig struct {
	JSON  bool
	Debug bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBURL: getEnv("DB_URL", ""),
		Storage: StorageConfig{
			Bucket:      getEnv("S3_BUCKET_NAME", ""),
			R2AccountID: getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:   getEnv("R2_ACCESS_KEY", ""),
			SecretKey:   getEnv("R2_SECRET_KEY", ""),
		},
		AWS: AWSConfig{
			Region: getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", "us-east-1")),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Queue:    getEnv("RABBITMQ_QUEUE", "briefs"),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "brief_updates"),
			Workers:  getEnvAsInt("WORKERS", 3),
		},
		Gemini: GeminiConfig{
			APIKey:         getEnv("GOOGLE_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			SynthesisModel: getEnv("GEMINI_SYNTHESIS_MODEL", "gemini-2.5-pro"),
		},
		GitHub: GitHubConfig{
			Token:     getEnv("GITHUB_TOKEN", ""),
			SecretARN: getEnv("GITHUB_SECRET_ARN", ""),
			SecretKey: getEnv("GITHUB_SECRET_KEY", "GITHUB_TOKEN"),
			BaseURL:   getEnv("GITHUB_API_URL", "https://api.github.com"),
			Timeout:   getEnvAsDuration("GITHUB_TIMEOUT", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			Timeout:      getEnvAsDuration("PIPELINE_TIMEOUT", 10*time.Minute),
			PollInterval: getEnvAsDuration("OCR_POLL_INTERVAL", 5*time.Second),
			MaxOCRWait:   getEnvAsDuration("OCR_MAX_WAIT", 5*time.Minute),
			MaxRepos:     getEnvAsInt("MAX_REPOS", 20),
			MaxSelected:  getEnvAsInt("MAX_SELECTED_REPOS", 3),
			StaleAfter:   getEnvAsDuration("STALE_AFTER", 5*time.Minute),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Log: LogConfig{
			JSON:  getEnvAsBool("LOG_JSON", false),
			Debug: getEnvAsBool("LOG_DEBUG", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.DBURL == "" {
		missing = append(missing, "DB_URL")
	}
	if c.Storage.Bucket == "" {
		missing = append(missing, "S3_BUCKET_NAME")
	}
	if c.RabbitMQ.URL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.Gemini.APIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if c.GitHub.Token == "" && c.GitHub.SecretARN == "" {
		missing = append(missing, "GITHUB_TOKEN or GITHUB_SECRET_ARN")
	}
	if c.Storage.R2AccountID != "" && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		missing = append(missing, "R2_ACCESS_KEY/R2_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	if c.RabbitMQ.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.RabbitMQ.Workers)
	}
	if c.Pipeline.MaxSelected <= 0 || c.Pipeline.MaxRepos <= 0 {
		return fmt.Errorf("MAX_REPOS and MAX_SELECTED_REPOS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

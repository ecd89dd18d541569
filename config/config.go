package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Object store backends.
const (
	ObjectStoreLocal      = "local"
	ObjectStoreGridFS     = "gridfs"
	ObjectStoreCloudinary = "cloudinary"
)

type Config struct {
	Env      string `envconfig:"GO_ENV" default:"development"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Domain of the auth cookie.
	Domain      string   `envconfig:"DOMAIN"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	// Mongo. An empty URI runs on the in-memory store.
	MongoURI      string `envconfig:"MONGODB_URI"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"mydb"`

	RedisAddress  string `envconfig:"REDIS_ADDRESS"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	JWTSecret        string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL         time.Duration `envconfig:"TOKEN_TTL" default:"72h"`
	ResetTTL         time.Duration `envconfig:"RESET_TTL" default:"1h"`
	PasswordResetURL string        `envconfig:"PASSWORD_RESET_URL" default:"http://localhost:3000/reset-password"`

	// Redis key prefix of the per-reporter issue counters.
	IssueLimitQueue string `envconfig:"REDIS_QUEUE_FOR_ISSUE_LIMIT" default:"issue_limit"`
	IssueDailyLimit int    `envconfig:"ISSUE_DAILY_LIMIT" default:"5"`

	ObjectStore         string        `envconfig:"OBJECT_STORE" default:"local"`
	UploadDir           string        `envconfig:"UPLOAD_DIR" default:"uploads"`
	StaticBase          string        `envconfig:"STATIC_BASE" default:"/static/uploads"`
	FilesPublicURL      string        `envconfig:"FILES_PUBLIC_URL" default:"/files"`
	CloudinaryName      string        `envconfig:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryPreset    string        `envconfig:"CLOUDINARY_UPLOAD_PRESET"`
	UploadConcurrency   int           `envconfig:"UPLOAD_CONCURRENCY" default:"0"`
	UploadTimeout       time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"60s"`
	UploadMaxImageBytes int64         `envconfig:"UPLOAD_MAX_IMAGE_BYTES" default:"10485760"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"fixmyarea.events"`

	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY"`
	MailFromName   string `envconfig:"MAIL_FROM_NAME" default:"FixMyArea"`
	MailFromAddr   string `envconfig:"MAIL_FROM_ADDRESS" default:"no-reply@fixmyarea.app"`

	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	c.ObjectStore = strings.ToLower(strings.TrimSpace(c.ObjectStore))
	switch c.ObjectStore {
	case ObjectStoreLocal:
	case ObjectStoreGridFS:
		if c.MongoURI == "" {
			return errors.New("OBJECT_STORE=gridfs needs MONGODB_URI")
		}
	case ObjectStoreCloudinary:
		if c.CloudinaryName == "" || c.CloudinaryPreset == "" {
			return errors.New("OBJECT_STORE=cloudinary needs CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET")
		}
	default:
		return fmt.Errorf("unknown OBJECT_STORE %q", c.ObjectStore)
	}
	if c.IssueDailyLimit < 0 {
		return errors.New("ISSUE_DAILY_LIMIT must not be negative")
	}
	if c.OTelEnabled && c.OTelEndpoint == "" {
		return errors.New("OTEL_ENABLED needs OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return nil
}

// SlogLevel parses LOG_LEVEL, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

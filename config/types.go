package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration. A Config is built once by
// Load and passed by pointer into adapters and factories; nothing mutates it
// afterwards.
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	AWS        AWSConfig
	HTTP       HTTPConfig
	Lambda     LambdaConfig
	Azure      AzureConfig
	Handler    HandlerConfig
	Publisher  PublisherConfig
	Repository RepositoryConfig
	Redaction  RedactionConfig
	Auth       AuthConfig
}

// AWSConfig holds AWS SDK configuration
type AWSConfig struct {
	Region          string
	Endpoint        string // LocalStack or other emulator, local development only
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
}

// HTTPConfig holds the local HTTP server configuration
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LambdaConfig holds Lambda adapter configuration
type LambdaConfig struct {
	EnablePartialBatchFailure bool
	AutoBase64Decode          bool
}

// AzureConfig holds Azure Functions custom handler configuration
type AzureConfig struct {
	// Port is read from FUNCTIONS_CUSTOMHANDLER_PORT, set by the host
	Port string
}

// HandlerConfig holds handler pipeline configuration
type HandlerConfig struct {
	MaxRequestSize int64
	EnableHealth   bool
	EnableMetrics  bool
	EnableTracing  bool
	Platform       string // auto-detected if empty
}

// PublisherConfig selects and configures the event publisher
type PublisherConfig struct {
	Kind         string // sqs, eventbridge, kafka or memory
	QueueName    string
	QueueURL     string
	EventBusName string
	Source       string
	KafkaBrokers []string
	KafkaTopic   string

	// Circuit breaker around the publisher; zero MaxFailures disables it
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// RepositoryConfig selects and configures the key-value repository backend
type RepositoryConfig struct {
	Kind   string // memory, file, s3, dynamodb or redis
	Path   string
	Bucket string
	Prefix string
	Table  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// RedactionConfig configures confidentiality filtering of logs and error
// bodies
type RedactionConfig struct {
	Keys           []string
	Marker         string
	InternalPrefix string
}

// AuthConfig configures bearer token verification
type AuthConfig struct {
	SigningMethod string
	JWTSecret     string
	JWTPublicKey  string
	Issuer        string
	Audience      string
}

var (
	publisherKinds  = map[string]bool{"sqs": true, "eventbridge": true, "kafka": true, "memory": true}
	repositoryKinds = map[string]bool{"memory": true, "file": true, "s3": true, "dynamodb": true, "redis": true}
)

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	if !publisherKinds[c.Publisher.Kind] {
		errors = append(errors, fmt.Sprintf("PUBLISHER_KIND %q is not one of sqs, eventbridge, kafka, memory", c.Publisher.Kind))
	}
	switch c.Publisher.Kind {
	case "sqs":
		if c.Publisher.QueueName == "" && c.Publisher.QueueURL == "" {
			errors = append(errors, "PUBLISHER_QUEUE_NAME or PUBLISHER_QUEUE_URL is required for the sqs publisher")
		}
	case "eventbridge":
		if c.Publisher.Source == "" {
			errors = append(errors, "PUBLISHER_SOURCE is required for the eventbridge publisher")
		}
	case "kafka":
		if len(c.Publisher.KafkaBrokers) == 0 || c.Publisher.KafkaTopic == "" {
			errors = append(errors, "PUBLISHER_KAFKA_BROKERS and PUBLISHER_KAFKA_TOPIC are required for the kafka publisher")
		}
	}

	if !repositoryKinds[c.Repository.Kind] {
		errors = append(errors, fmt.Sprintf("REPOSITORY_KIND %q is not one of memory, file, s3, dynamodb, redis", c.Repository.Kind))
	}
	switch c.Repository.Kind {
	case "file":
		if c.Repository.Path == "" {
			errors = append(errors, "REPOSITORY_PATH is required for the file repository")
		}
	case "s3":
		if c.Repository.Bucket == "" {
			errors = append(errors, "REPOSITORY_BUCKET is required for the s3 repository")
		}
	case "dynamodb":
		if c.Repository.Table == "" {
			errors = append(errors, "REPOSITORY_TABLE is required for the dynamodb repository")
		}
	case "redis":
		if c.Repository.RedisAddr == "" {
			errors = append(errors, "REPOSITORY_REDIS_ADDR is required for the redis repository")
		}
	}

	if c.Handler.MaxRequestSize <= 0 {
		errors = append(errors, "HANDLER_MAX_REQUEST_SIZE must be positive")
	}
	if c.AWS.MaxRetries < 0 {
		errors = append(errors, "AWS_MAX_RETRIES cannot be negative")
	}
	if c.Auth.SigningMethod == "RS256" && c.Auth.JWTPublicKey == "" {
		errors = append(errors, "AUTH_JWT_PUBLIC_KEY is required for RS256")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Environment detection methods

// IsLocal returns true if running in local/development environment
func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}

// IsStaging returns true if running in staging environment
func (c *Config) IsStaging() bool {
	env := strings.ToLower(c.Environment)
	return env == "staging" || env == "stage"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	env := strings.ToLower(c.Environment)
	return env == "test" || env == "testing"
}

// AuthEnabled reports whether bearer token verification is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != "" || c.Auth.JWTPublicKey != ""
}

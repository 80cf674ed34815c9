package config

// parse reads configuration from environment variables
func parse() *Config {
	return &Config{
		// Core
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", "fnkit-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Version:     getEnv("SERVICE_VERSION", "0.0.0"),

		// AWS
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", "us-east-1")),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MaxRetries:      getInt("AWS_MAX_RETRIES", 3),
		},

		// Local HTTP server
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:  getDuration("HTTP_READ_TIMEOUT", "30s"),
			WriteTimeout: getDuration("HTTP_WRITE_TIMEOUT", "30s"),
		},

		// Lambda
		Lambda: LambdaConfig{
			EnablePartialBatchFailure: getBool("LAMBDA_PARTIAL_BATCH_FAILURE", true),
			AutoBase64Decode:          getBool("LAMBDA_AUTO_BASE64_DECODE", true),
		},

		// Azure Functions
		Azure: AzureConfig{
			Port: getEnv("FUNCTIONS_CUSTOMHANDLER_PORT", ""),
		},

		// Handler
		Handler: HandlerConfig{
			MaxRequestSize: int64(getInt("HANDLER_MAX_REQUEST_SIZE", 6*1024*1024)),
			EnableHealth:   getBool("HANDLER_ENABLE_HEALTH", true),
			EnableMetrics:  getBool("HANDLER_ENABLE_METRICS", true),
			EnableTracing:  getBool("HANDLER_ENABLE_TRACING", true),
			Platform:       getEnv("HANDLER_PLATFORM", ""),
		},

		// Publisher
		Publisher: PublisherConfig{
			Kind:               getEnv("PUBLISHER_KIND", "memory"),
			QueueName:          getEnv("PUBLISHER_QUEUE_NAME", ""),
			QueueURL:           getEnv("PUBLISHER_QUEUE_URL", ""),
			EventBusName:       getEnv("PUBLISHER_EVENT_BUS", "default"),
			Source:             getEnv("PUBLISHER_SOURCE", ""),
			KafkaBrokers:       getList("PUBLISHER_KAFKA_BROKERS"),
			KafkaTopic:         getEnv("PUBLISHER_KAFKA_TOPIC", ""),
			BreakerMaxFailures: uint32(getInt("PUBLISHER_BREAKER_MAX_FAILURES", 5)),
			BreakerTimeout:     getDuration("PUBLISHER_BREAKER_TIMEOUT", "30s"),
		},

		// Repository
		Repository: RepositoryConfig{
			Kind:   getEnv("REPOSITORY_KIND", "memory"),
			Path:   getEnv("REPOSITORY_PATH", ""),
			Bucket: getEnv("REPOSITORY_BUCKET", ""),
			Prefix: getEnv("REPOSITORY_PREFIX", ""),
			Table:  getEnv("REPOSITORY_TABLE", ""),

			RedisAddr:     getEnv("REPOSITORY_REDIS_ADDR", ""),
			RedisPassword: getEnv("REPOSITORY_REDIS_PASSWORD", ""),
			RedisDB:       getInt("REPOSITORY_REDIS_DB", 0),
		},

		// Redaction
		Redaction: RedactionConfig{
			Keys:           getList("REDACT_KEYS"),
			Marker:         getEnv("REDACT_MARKER", ""),
			InternalPrefix: getEnv("REDACT_INTERNAL_PREFIX", ""),
		},

		// Auth
		Auth: AuthConfig{
			SigningMethod: getEnv("AUTH_JWT_SIGNING_METHOD", "HS256"),
			JWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
			JWTPublicKey:  getEnv("AUTH_JWT_PUBLIC_KEY", ""),
			Issuer:        getEnv("AUTH_JWT_ISSUER", ""),
			Audience:      getEnv("AUTH_JWT_AUDIENCE", ""),
		},
	}
}

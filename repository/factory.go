package repository

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"fnkit/awsclient"
	"fnkit/config"
)

// NewBackend creates the backend selected by cfg.Kind.
func NewBackend(cfg config.RepositoryConfig, awsCfg aws.Config) (Backend, error) {
	switch cfg.Kind {
	case "memory", "":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.Path)
	case "s3":
		return NewS3Backend(awsclient.NewS3(awsCfg), cfg.Bucket, cfg.Prefix), nil
	case "dynamodb":
		return NewDynamoBackend(awsclient.NewDynamoDB(awsCfg), cfg.Table), nil
	case "redis":
		client := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return NewRedisBackend(client, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported repository kind: %s", cfg.Kind)
	}
}

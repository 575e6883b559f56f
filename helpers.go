package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/config"
	"github.com/muhammadolammi/proofbriefworker/internal/github"
	"github.com/muhammadolammi/proofbriefworker/internal/pipeline"
	"github.com/muhammadolammi/proofbriefworker/internal/secrets"
)

// loadAWSConfig returns the default-chain config for Textract and Secrets
// Manager, and the config the object store uses. With an R2 account the
// store gets static R2 credentials and region "auto".
func loadAWSConfig(ctx context.Context, cfg *config.Config) (base aws.Config, store aws.Config, err error) {
	base, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Storage.R2AccountID == "" {
		return base, base, nil
	}
	store, err = awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKey, cfg.Storage.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return aws.Config{}, aws.Config{}, fmt.Errorf("load r2 config: %w", err)
	}
	return base, store, nil
}

func newS3Client(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	if cfg.Storage.R2AccountID == "" {
		return s3.NewFromConfig(awsCfg)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.Storage.R2AccountID))
	})
}

// githubTokenFetcher prefers Secrets Manager when an ARN is configured.
func githubTokenFetcher(awsCfg aws.Config, cfg *config.Config) secrets.Fetcher {
	if cfg.GitHub.SecretARN != "" {
		return secrets.SecretsManager(secretsmanager.NewFromConfig(awsCfg), cfg.GitHub.SecretARN, cfg.GitHub.SecretKey)
	}
	return secrets.Static(cfg.GitHub.Token)
}

func githubFactory(cfg *config.Config, log *zap.Logger) pipeline.GitHubFactory {
	httpClient := &http.Client{Timeout: cfg.GitHub.Timeout}
	return func(tokens github.TokenSource) pipeline.GitHubAPI {
		return github.NewClient(httpClient, cfg.GitHub.BaseURL, tokens, log)
	}
}

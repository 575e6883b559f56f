// Package secrets resolves credentials lazily for the lifetime of one pipeline run.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Fetcher loads a secret value.
type Fetcher func(ctx context.Context) (string, error)

// Lazy fetches its secret on first use and caches it. Failed fetches are not
// cached, so a later call tries again.
type Lazy struct {
	name  string
	fetch Fetcher

	mu     sync.Mutex
	value  string
	loaded bool
}

func NewLazy(name string, fetch Fetcher) *Lazy {
	return &Lazy{name: name, fetch: fetch}
}

// Token returns the cached secret, fetching it if needed.
func (l *Lazy) Token(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.value, nil
	}
	if l.fetch == nil {
		return "", fmt.Errorf("%s: no source configured", l.name)
	}

	value, err := l.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", l.name, err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is empty", l.name)
	}

	l.value = value
	l.loaded = true
	return value, nil
}

// Static returns a fetcher for an inline value.
func Static(value string) Fetcher {
	return func(context.Context) (string, error) {
		if strings.TrimSpace(value) == "" {
			return "", errors.New("inline secret is not configured")
		}
		return value, nil
	}
}

type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager returns a fetcher reading key from a JSON secret. A secret
// that is not a JSON object is returned as is.
func SecretsManager(client SecretsManagerAPI, secretID, key string) Fetcher {
	return func(ctx context.Context) (string, error) {
		out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			return "", fmt.Errorf("get secret value: %w", err)
		}
		raw := aws.ToString(out.SecretString)

		var fields map[string]string
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return raw, nil
		}
		value, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("secret %s has no key %q", secretID, key)
		}
		return value, nil
	}
}

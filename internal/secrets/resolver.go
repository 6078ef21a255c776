package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Credentials are the venue API keys for one trading account.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Resolver resolves venue credentials for a trading account from AWS Secrets
// Manager. Environment-provided credentials take precedence so local runs
// never need AWS access.
//
// Secret naming convention: {env}/paradigm/{account}
type Resolver struct {
	logger   *zap.Logger
	env      string
	provider Provider
}

// NewResolver constructs a credential resolver.
func NewResolver(logger *zap.Logger, env string, provider Provider) *Resolver {
	return &Resolver{logger: logger, env: env, provider: provider}
}

// secretName builds the AWS Secrets Manager key for an account.
func (r *Resolver) secretName(account string) string {
	return strings.ToLower(fmt.Sprintf("%s/paradigm/%s", r.env, account))
}

// Resolve returns credentials for the account. fallback is returned as-is
// when both of its keys are set; otherwise the account's secret is fetched
// and must carry access_key and secret_key entries.
func (r *Resolver) Resolve(ctx context.Context, account string, fallback Credentials) (Credentials, error) {
	if fallback.AccessKey != "" && fallback.SecretKey != "" {
		return fallback, nil
	}

	if r.provider == nil {
		return Credentials{}, fmt.Errorf("no credentials for account %q and no secrets provider configured", account)
	}

	name := r.secretName(account)
	secretMap, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return Credentials{}, fmt.Errorf("resolve credentials for %q: %w", account, err)
	}

	creds := Credentials{
		AccessKey: secretMap["access_key"],
		SecretKey: secretMap["secret_key"],
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf("secret %q is missing access_key or secret_key", name)
	}

	r.logger.Info("aws.credentials_resolved", zap.String("account", account))
	return creds, nil
}

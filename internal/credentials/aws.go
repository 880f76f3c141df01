package credentials

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/smart-hedge/marketdata-gateway/pkg/secrets"
)

const venue = "angel"

// AWSProvider resolves credentials from AWS Secrets Manager and keeps them in
// a local TTL cache.
//
// Secret naming convention: {env}/{clientID}/angel
// Secret JSON format:       {"client_code": "...", "mpin": "...", "totp_secret": "...", "api_key": "..."}
type AWSProvider struct {
	logger   *zap.Logger
	env      string
	clientID string
	secrets  pkgsecrets.Provider
	cache    *pkgsecrets.Cache[Credentials]
}

func NewAWSProvider(
	logger *zap.Logger,
	env string,
	clientID string,
	secrets pkgsecrets.Provider,
	cache *pkgsecrets.Cache[Credentials],
) *AWSProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AWSProvider{
		logger:   logger,
		env:      env,
		clientID: clientID,
		secrets:  secrets,
		cache:    cache,
	}
}

func (p *AWSProvider) cacheKey() string {
	return strings.ToLower(fmt.Sprintf("%s|%s", p.clientID, venue))
}

// SecretName returns the Secrets Manager key for the configured client.
func (p *AWSProvider) SecretName() string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", p.env, p.clientID, venue))
}

func (p *AWSProvider) Credentials(ctx context.Context) (Credentials, error) {
	key := p.cacheKey()
	if c, ok := p.cache.Get(key); ok {
		return c, nil
	}

	name := p.SecretName()
	m, err := p.secrets.GetSecret(ctx, name)
	if err != nil {
		p.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return Credentials{}, fmt.Errorf("resolve angel credentials for %q: %w", p.clientID, err)
	}

	c, err := parseSecret(m)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse secret %q: %w", name, err)
	}

	p.cache.Put(key, c)
	p.logger.Info("aws.credentials_resolved",
		zap.String("client", p.clientID),
		zap.String("venue", venue))
	return c, nil
}

// Invalidate drops the cached secret so the next call re-reads it.
func (p *AWSProvider) Invalidate() {
	p.cache.Bust(p.cacheKey())
}

// DiscoverClients lists client IDs that have an angel secret under {env}/.
func (p *AWSProvider) DiscoverClients(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(p.env + "/")
	suffix := "/" + venue

	names, err := p.secrets.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover clients: %w", err)
	}

	var clients []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, suffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(lower, prefix), suffix)
		if id != "" && !strings.Contains(id, "/") {
			clients = append(clients, id)
		}
	}
	return clients, nil
}

func parseSecret(m map[string]string) (Credentials, error) {
	c := Credentials{
		ClientCode: m["client_code"],
		Password:   m["mpin"],
		TOTPSecret: m["totp_secret"],
		APIKey:     m["api_key"],
	}
	if c.ClientCode == "" {
		return Credentials{}, fmt.Errorf("missing required field 'client_code'")
	}
	if c.Password == "" {
		return Credentials{}, fmt.Errorf("missing required field 'mpin'")
	}
	if c.TOTPSecret == "" {
		return Credentials{}, fmt.Errorf("missing required field 'totp_secret'")
	}
	return c, nil
}

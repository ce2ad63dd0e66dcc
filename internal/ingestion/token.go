package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// GraphScope is the client-credentials scope for Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// tokenEarlyExpiry keeps cached tokens from being used right up to expiry.
const tokenEarlyExpiry = time.Minute

// TokenCache shares access tokens between processes. Get returns nil on a miss.
type TokenCache interface {
	Get(ctx context.Context, key string) (*oauth2.Token, error)
	Set(ctx context.Context, key string, token *oauth2.Token) error
}

// RedisTokenCache stores tokens as JSON with a TTL matching their expiry.
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenCache builds a cache; a nil client disables caching.
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, prefix: "helpdesk:graph-token:"}
}

// Get loads a token.
func (c *RedisTokenCache) Get(ctx context.Context, key string) (*oauth2.Token, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Set stores a token until shortly before it expires.
func (c *RedisTokenCache) Set(ctx context.Context, key string, token *oauth2.Token) error {
	if c == nil || c.client == nil || token == nil || token.Expiry.IsZero() {
		return nil
	}
	ttl := time.Until(token.Expiry) - tokenEarlyExpiry
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, ttl).Err()
}

// CredentialsProvider hands out per-mailbox token sources backed by the
// client-credentials grant.
type CredentialsProvider struct {
	loginBaseURL string
	cache        TokenCache
	httpClient   *http.Client
	logger       *zap.Logger

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewCredentialsProvider builds a provider. httpClient may be nil.
func NewCredentialsProvider(loginBaseURL string, cache TokenCache, httpClient *http.Client, logger *zap.Logger) *CredentialsProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialsProvider{
		loginBaseURL: strings.TrimRight(loginBaseURL, "/"),
		cache:        cache,
		httpClient:   httpClient,
		logger:       logger,
		sources:      map[string]oauth2.TokenSource{},
	}
}

// TokenSource returns the token source for mailbox, reusing valid tokens.
func (p *CredentialsProvider) TokenSource(mailbox domain.Mailbox) oauth2.TokenSource {
	key := mailbox.ID + ":" + mailbox.ClientID
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts, ok := p.sources[key]; ok {
		return ts
	}
	cfg := clientcredentials.Config{
		ClientID:     mailbox.ClientID,
		ClientSecret: mailbox.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.loginBaseURL, mailbox.AzureTenantID),
		Scopes:       []string{GraphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The grant's context only carries the HTTP client; per-call deadlines come from requests.
	grantCtx := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)
	cached := &cachedTokenSource{
		key:    key,
		cache:  p.cache,
		base:   cfg.TokenSource(grantCtx),
		logger: p.logger,
	}
	ts := oauth2.ReuseTokenSource(nil, cached)
	p.sources[key] = ts
	return ts
}

type cachedTokenSource struct {
	key    string
	cache  TokenCache
	base   oauth2.TokenSource
	logger *zap.Logger
}

func (s *cachedTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s.cache != nil {
		if token, err := s.cache.Get(ctx, s.key); err != nil {
			s.logger.Warn("graph token cache read failed", zap.Error(err))
		} else if token != nil && token.Valid() {
			return token, nil
		}
	}
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("identity provider returned no access token")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, s.key, token); err != nil {
			s.logger.Warn("graph token cache write failed", zap.Error(err))
		}
	}
	return token, nil
}

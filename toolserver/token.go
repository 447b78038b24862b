package toolserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig configures the service-token provider.
type TokenConfig struct {
	// Secret is the HMAC signing secret shared with the tool servers.
	Secret []byte

	// Issuer is the iss claim.
	// Default: "agentcache"
	Issuer string

	// Audience is the aud claim.
	Audience string

	// Subject is the sub claim identifying this process.
	Subject string

	// TTL is the token lifetime.
	// Default: 15 minutes
	TTL time.Duration
}

// TokenProvider mints short-lived HS256 service tokens for authenticating
// to remote tool servers, reusing a minted token until it nears expiry.
//
// Contract:
// - Concurrency: safe for concurrent use.
type TokenProvider struct {
	config TokenConfig

	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenProvider creates a new token provider.
func NewTokenProvider(config TokenConfig) (*TokenProvider, error) {
	if len(config.Secret) == 0 {
		return nil, ErrMissingSecret
	}

	// Apply defaults
	if config.Issuer == "" {
		config.Issuer = "agentcache"
	}
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}

	return &TokenProvider{
		config: config,
		now:    time.Now,
	}, nil
}

// Token returns a valid signed token, minting a fresh one when the cached
// token is within a quarter of its TTL from expiry.
func (p *TokenProvider) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	skew := p.config.TTL / 4
	if p.token != "" && p.now().Add(skew).Before(p.expiresAt) {
		return p.token, nil
	}

	now := p.now()
	expiresAt := now.Add(p.config.TTL)

	claims := jwt.RegisteredClaims{
		Issuer:    p.config.Issuer,
		Subject:   p.config.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if p.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{p.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.config.Secret)
	if err != nil {
		return "", fmt.Errorf("toolserver: signing token: %w", err)
	}

	p.token = signed
	p.expiresAt = expiresAt
	return signed, nil
}

// AuthorizationHeader returns the value for an Authorization header.
func (p *TokenProvider) AuthorizationHeader() (string, error) {
	token, err := p.Token()
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

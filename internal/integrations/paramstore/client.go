// Package paramstore reads configuration and secrets from AWS SSM Parameter
// Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 5 * time.Minute

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface consumers such as the OpenAI client depend on.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads decrypted parameters and keeps successful reads for a short
// TTL, so a warm Lambda does not call SSM on every request and a rotated
// secret is still picked up. Concurrent misses for the same name share one
// SSM call. Failures are never cached.
type Client struct {
	api   ssmAPI
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedValue
}

type cachedValue struct {
	value     string
	expiresAt time.Time
}

type Option func(*Client)

// WithCacheTTL sets how long a value is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

func New(api ssmAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	c := &Client{
		api:   api,
		ttl:   defaultCacheTTL,
		now:   time.Now,
		cache: make(map[string]cachedValue),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	if v, ok := c.cached(name); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		value, err := c.fetch(ctx, name)
		if err != nil {
			return "", err
		}
		c.store(name, value)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetch(ctx context.Context, name string) (string, error) {
	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

func (c *Client) cached(name string) (string, bool) {
	if c.ttl == 0 {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cache[name]
	if !ok || !c.now().Before(v.expiresAt) {
		return "", false
	}
	return v.value, true
}

func (c *Client) store(name, value string) {
	if c.ttl == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[name] = cachedValue{value: value, expiresAt: c.now().Add(c.ttl)}
}

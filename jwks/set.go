// Package jwks fetches and caches a remote JSON Web Key Set.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnavailable is returned when the key set cannot be fetched or parsed.
	ErrUnavailable = errors.New("jwks: key set unavailable")
	// ErrKeyNotFound is returned when no key matches the requested kid.
	ErrKeyNotFound = errors.New("jwks: key not found")
)

const (
	DefaultTTL     = 10 * time.Minute
	DefaultTimeout = 5 * time.Second

	cacheKey     = "jwks"
	maxBodyBytes = 1 << 20
)

// Config configures a Set.
type Config struct {
	URL string
	// TTL is how long a fetched key set is reused.
	TTL    time.Duration
	Client *http.Client
}

// Set resolves RSA verification keys by kid. Fetches are cached for TTL and
// concurrent misses share one request.
type Set struct {
	url    string
	client *http.Client
	ttl    time.Duration
	cache  *gocache.Cache
	group  singleflight.Group
}

// New creates a Set for cfg.URL.
func New(cfg Config) (*Set, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("jwks: url is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &Set{
		url:    url,
		client: client,
		ttl:    ttl,
		cache:  gocache.New(ttl, time.Minute),
	}, nil
}

// URL returns the key set endpoint.
func (s *Set) URL() string {
	return s.url
}

// Key returns the public key for kid. A miss on a cached set forces one
// refetch so rotated keys are picked up.
func (s *Set) Key(ctx context.Context, kid string) (any, error) {
	set, cached, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}

	key, err := lookup(set, kid)
	if err == nil || !errors.Is(err, ErrKeyNotFound) || !cached {
		return key, err
	}

	set, _, err = s.load(ctx, true)
	if err != nil {
		return nil, err
	}
	return lookup(set, kid)
}

// Invalidate drops the cached key set.
func (s *Set) Invalidate() {
	s.cache.Delete(cacheKey)
}

func (s *Set) load(ctx context.Context, force bool) (*keyfunc.JWKS, bool, error) {
	if !force {
		if v, ok := s.cache.Get(cacheKey); ok {
			if set, ok := v.(*keyfunc.JWKS); ok {
				return set, true, nil
			}
		}
	}

	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		raw, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		set, err := keyfunc.NewJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse: %v", ErrUnavailable, err)
		}
		s.cache.Set(cacheKey, set, s.ttl)
		return set, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*keyfunc.JWKS), false, nil
}

func (s *Set) fetch(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
	}
	return json.RawMessage(body), nil
}

func lookup(set *keyfunc.JWKS, kid string) (any, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: empty kid", ErrKeyNotFound)
	}

	token := &jwt.Token{
		Header: map[string]any{
			"kid": kid,
			"alg": jwt.SigningMethodRS256.Alg(),
		},
		Method: jwt.SigningMethodRS256,
	}

	key, err := set.Keyfunc(token)
	if err != nil {
		return nil, fmt.Errorf("%w: kid %q: %v", ErrKeyNotFound, kid, err)
	}
	return key, nil
}

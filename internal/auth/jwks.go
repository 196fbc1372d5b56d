package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// KeySource resolves RSA verification keys by kid.
type KeySource interface {
	Get(kid string) (*rsa.PublicKey, error)
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

// JWKS caches the realm's RSA public keys by kid and refreshes them in the
// background.
type JWKS struct {
	url    string
	http   *resty.Client
	logger *zap.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey

	ticker *time.Ticker
	quit   chan struct{}
	once   sync.Once
}

// NewJWKS loads the key set from url and refreshes it every refreshInterval
// (15m when zero).
func NewJWKS(ctx context.Context, url string, refreshInterval time.Duration, logger *zap.Logger) (*JWKS, error) {
	if refreshInterval <= 0 {
		refreshInterval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &JWKS{
		url:    url,
		http:   resty.New().SetTimeout(10 * time.Second),
		logger: logger,
		keys:   map[string]*rsa.PublicKey{},
		ticker: time.NewTicker(refreshInterval),
		quit:   make(chan struct{}),
	}
	if err := j.refresh(ctx); err != nil {
		j.ticker.Stop()
		return nil, err
	}
	go j.loop()
	return j, nil
}

func (j *JWKS) loop() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.refresh(context.Background()); err != nil {
				j.logger.Warn("jwks refresh failed", zap.String("url", j.url), zap.Error(err))
			}
		case <-j.quit:
			return
		}
	}
}

// Close stops background refresh.
func (j *JWKS) Close() {
	j.once.Do(func() {
		close(j.quit)
		j.ticker.Stop()
	})
}

func (j *JWKS) refresh(ctx context.Context) error {
	var doc jwksDocument
	resp, err := j.http.R().SetContext(ctx).SetResult(&doc).ForceContentType("application/json").Get(j.url)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode())
	}

	keys, err := parseKeys(doc)
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.keys = keys
	j.mu.Unlock()
	return nil
}

// Get returns the key for kid, refetching the set once on a miss.
func (j *JWKS) Get(kid string) (*rsa.PublicKey, error) {
	j.mu.RLock()
	p := j.keys[kid]
	j.mu.RUnlock()
	if p != nil {
		return p, nil
	}
	if err := j.refresh(context.Background()); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if p = j.keys[kid]; p == nil {
		return nil, ErrKeyNotFound
	}
	return p, nil
}

func parseKeys(doc jwksDocument) (map[string]*rsa.PublicKey, error) {
	out := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("jwks key %s: modulus: %w", k.Kid, err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("jwks key %s: exponent: %w", k.Kid, err)
		}
		out[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}
	}
	return out, nil
}

// StaticKeys is a fixed KeySource.
type StaticKeys map[string]*rsa.PublicKey

func (s StaticKeys) Get(kid string) (*rsa.PublicKey, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

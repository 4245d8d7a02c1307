package provider

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// EnvProviderURL names the environment variable that points at the wallet endpoint.
const EnvProviderURL = "WALLET_PROVIDER_URL"

// Locator looks for a provider in one place. It returns (nil, nil) when nothing is there.
type Locator func(ctx context.Context) (Provider, error)

// Discovery finds the injected wallet provider and caches it for the rest of the session.
type Discovery struct {
	mu       sync.Mutex
	locators []Locator
	cached   Provider
	l        *zap.Logger
}

// NewDiscovery creates a Discovery that tries locators in order.
func NewDiscovery(l *zap.Logger, locators ...Locator) *Discovery {
	return &Discovery{locators: locators, l: l}
}

// Detect returns the cached provider or scans the locators.
// It fails with domain.ErrProviderNotFound when no locator yields a provider.
func (d *Discovery) Detect(ctx context.Context) (Provider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil {
		return d.cached, nil
	}

	var lastErr error
	for _, locate := range d.locators {
		p, err := locate(ctx)
		if err != nil {
			d.l.Debug("provider locator failed", zap.Error(err))
			lastErr = err
			continue
		}
		if p != nil {
			d.cached = p
			return p, nil
		}
	}

	if lastErr != nil {
		return nil, errors.Wrapf(domain.ErrProviderNotFound, "no reachable wallet, last error: %v", lastErr)
	}
	return nil, errors.Wrap(domain.ErrProviderNotFound, "install or enable a wallet and set "+EnvProviderURL)
}

// Cached returns the provider found by a previous Detect, if any.
func (d *Discovery) Cached() Provider {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cached
}

// Reset drops the cached provider handle.
func (d *Discovery) Reset() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// Static always yields p.
func Static(p Provider) Locator {
	return func(context.Context) (Provider, error) {
		return p, nil
	}
}

// URLLocator dials the wallet endpoint at url; an empty url means no provider.
func URLLocator(url string, pollInterval time.Duration, l *zap.Logger) Locator {
	return func(ctx context.Context) (Provider, error) {
		url := strings.TrimSpace(url)
		if url == "" {
			return nil, nil
		}
		p, err := DialRPCProvider(ctx, url, pollInterval, l)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// EnvLocator dials the endpoint named by EnvProviderURL.
func EnvLocator(pollInterval time.Duration, l *zap.Logger) Locator {
	return func(ctx context.Context) (Provider, error) {
		return URLLocator(os.Getenv(EnvProviderURL), pollInterval, l)(ctx)
	}
}

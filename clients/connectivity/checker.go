// Package connectivity answers whether the internet is reachable.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultURL     = "https://www.google.com"
	DefaultTimeout = 5 * time.Second
)

var ErrUnreachable = errors.New("internet unreachable")

type Interface interface {
	Check(ctx context.Context) error
}

type Config struct {
	URL     string
	Timeout time.Duration
}

type Checker struct {
	url  string
	http *resty.Client
}

func New(cfg *Config) (*Checker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Checker{
		url:  url,
		http: resty.New().SetTimeout(timeout),
	}, nil
}

// Check sends a HEAD request to the probe URL. Any response below 500 counts
// as reachable.
func (c *Checker) Check(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Head(c.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	if resp.StatusCode() >= 500 {
		return fmt.Errorf("%w: probe returned status %d", ErrUnreachable, resp.StatusCode())
	}

	return nil
}

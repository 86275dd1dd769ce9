package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// DefaultPort is where the monitoring service listens when no port is given
const DefaultPort = "8080"

// probeTimeout bounds each detection attempt
const probeTimeout = 3 * time.Second

// Variant is one base URL and prefix combination to try
type Variant struct {
	URL    *url.URL
	Prefix string
}

func (v Variant) String() string {
	return v.URL.String() + v.Prefix
}

// Detect tries URL variants of raw until one answers service-info.
// The returned client is configured with the variant that worked plus opts.
func Detect(ctx context.Context, raw string, logger logr.Logger, opts ...Option) (*Client, *ServiceInfo, error) {
	base, err := ParseServiceURL(raw)
	if err != nil {
		return nil, nil, err
	}

	var lastErr error
	for _, variant := range GenerateVariants(base) {
		logger.V(1).Info("trying service variant", "url", variant.String())

		attempt := append(append([]Option{}, opts...), WithPrefix(variant.Prefix), WithTimeout(probeTimeout))
		c, err := New(variant.URL.String(), attempt...)
		if err != nil {
			lastErr = err
			continue
		}

		info, err := c.ServiceInfo(ctx)
		if err != nil {
			logger.V(1).Info("service variant failed", "url", variant.String(), "error", err.Error())
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		logger.Info("found monitoring service", "url", variant.String(), "service", info.ServiceName)
		final, err := New(variant.URL.String(), append(append([]Option{}, opts...), WithPrefix(variant.Prefix))...)
		if err != nil {
			return nil, nil, err
		}
		return final, info, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no variants to try")
	}
	return nil, nil, fmt.Errorf("no monitoring service found at %s: %w", raw, lastErr)
}

// ParseServiceURL accepts "host", "host:port" or a full URL
func ParseServiceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("service url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("service url %q has no host", raw)
	}
	return u, nil
}

// GenerateVariants creates the URL and prefix combinations to try, most likely first
func GenerateVariants(base *url.URL) []Variant {
	var variants []Variant
	hostname := base.Hostname()
	port := base.Port()
	path := strings.TrimSuffix(base.Path, "/")

	// Schemes to try: the given one first, then the other
	schemes := []string{"http", "https"}
	if base.Scheme == "https" {
		schemes = []string{"https", "http"}
	}

	// Ports to try: an explicit port is the only one, otherwise the service
	// default and then the scheme default
	ports := []string{port}
	if port == "" {
		ports = []string{DefaultPort, ""}
	}

	// Prefixes to try: the given path, otherwise the standard mount point and the root
	prefixes := []string{path}
	if path == "" {
		prefixes = []string{DefaultPrefix, ""}
	}

	seen := make(map[string]bool)
	for _, scheme := range schemes {
		for _, p := range ports {
			host := hostname
			if strings.Contains(hostname, ":") {
				host = "[" + hostname + "]"
			}
			if p != "" {
				host += ":" + p
			}
			for _, prefix := range prefixes {
				v := Variant{
					URL:    &url.URL{Scheme: scheme, Host: host},
					Prefix: prefix,
				}
				if seen[v.String()] {
					continue
				}
				seen[v.String()] = true
				variants = append(variants, v)
			}
		}
	}

	return variants
}

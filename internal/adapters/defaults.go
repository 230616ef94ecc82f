package adapters

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"galleria/internal/config"
)

// ForConfig builds the registry of built-in adapters. Gallery data requests
// go through the configured proxy for hosts the proxy policy selects.
func ForConfig(cfg *config.Config, logger *slog.Logger) *Registry {
	timeout := time.Duration(cfg.Adapters.RequestTimeoutSeconds) * time.Second
	client := &http.Client{
		Timeout:   timeout,
		Transport: proxyTransport(cfg),
	}
	return NewRegistry(
		[]Adapter{NewDPReview(timeout, WithHTTPClient(client))},
		WithVideos(cfg.Adapters.DownloadSampleMovies),
		WithLogger(logger),
	)
}

func proxyTransport(cfg *config.Config) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	proxyURL, err := url.Parse(cfg.Proxy.URL)
	if err != nil || cfg.Proxy.URL == "" {
		return transport
	}
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if cfg.ProxyEnabled(req.URL.String()) {
			return proxyURL, nil
		}
		return nil, nil
	}
	return transport
}

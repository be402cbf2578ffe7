package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/keystone-cm/filedesk/internal/config"
	"github.com/keystone-cm/filedesk/internal/constants"
)

// CreateOptimizedClient creates an HTTP client for streaming file downloads
// from presigned URLs, with the same proxy settings as API calls.
//
// Differences from ConfigureHTTPClient:
//   - No overall client timeout (each download sets its own context deadline)
//   - HTTP/2 enabled unless a proxy is active or DISABLE_HTTP2=true
//   - Compression disabled
//
// If cfg is nil, proxy settings are not applied.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	var err error

	if cfg != nil {
		baseClient, err = ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		baseClient = &nethttp.Client{Transport: newTransport()}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a Negotiator; use it as-is
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConnsPerHost = 64
	tr.MaxConnsPerHost = 64
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	proxyActive := cfg != nil && cfg.ProxyMode != "" && cfg.ProxyMode != "no-proxy"
	if cfg != nil && cfg.ProxyMode == "system" {
		proxyActive = os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	}

	// Proxies often break HTTP/2 multiplexing mid-transfer
	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0

	return baseClient, nil
}

// Package httpclient builds the shared HTTP client used for S3 and broker traffic.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"

	"github.com/s3pub/s3pub/internal/constants"
)

// New creates an HTTP client tuned for concurrent presigned-URL transfers.
//
// The connection pool is sized to the worker count so that every upload worker
// can hold a connection without head-of-line blocking. Compression is disabled
// because artifact archives are already compressed. There is no client-level
// timeout; each operation bounds itself through its context.
func New(connectionTimeout time.Duration, nThreads int) *http.Client {
	if connectionTimeout <= 0 {
		connectionTimeout = constants.DefaultConnectionTimeout
	}
	if nThreads < 1 {
		nThreads = 1
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectionTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          nThreads * 2,
		MaxIdleConnsPerHost:   nThreads,
		MaxConnsPerHost:       nThreads,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
	_ = http2.ConfigureTransport(tr)

	// Runtime toggle for HTTP/1.1 fallback, useful behind picky proxies.
	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   0,
	}
}

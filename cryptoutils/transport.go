package cryptoutils

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"time"
)

// TransportFactory builds HTTPS clients that authenticate as one SAE and trust
// only the configured root. Every client gets its own transport so no
// connection state is shared between scenarios.
type TransportFactory struct {
	roots   *x509.CertPool
	timeout time.Duration
}

func NewTransportFactory(roots *x509.CertPool, timeout time.Duration) *TransportFactory {
	return &TransportFactory{
		roots:   roots,
		timeout: timeout,
	}
}

// TLSConfig returns the client TLS configuration for an identity: TLS 1.3 only,
// the server verified against the pinned root, the identity always presented.
func (f *TransportFactory) TLSConfig(identity tls.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		RootCAs:    f.roots,
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return &identity, nil
		},
	}
}

// Build returns a fresh client for the identity. The client timeout bounds
// every exchange, so a server that never answers surfaces as a transport error.
func (f *TransportFactory) Build(identity tls.Certificate) *http.Client {
	dialer := &net.Dialer{
		Timeout:   f.timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     f.TLSConfig(identity),
		TLSHandshakeTimeout: f.timeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
	}
}

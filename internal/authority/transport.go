package authority

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/net/http2"
)

// TLSConfig selects the trust roots and optional client certificate for
// the Authority channel. Empty CAFile uses the system pool.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// BuildHTTPClient returns an HTTP/2 client for https, or a plain HTTP/1.1
// client for http (local development Authorities only).
func BuildHTTPClient(scheme string, cfg TLSConfig) (*http.Client, error) {
	if scheme == "http" {
		return &http.Client{Transport: &http.Transport{Proxy: http.ProxyFromEnvironment}}, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("authority: read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("authority: parse CA certificate %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, fmt.Errorf("authority: cert_file and key_file must be set together")
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("authority: load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return &http.Client{
		Transport: &http2.Transport{TLSClientConfig: tlsConfig},
	}, nil
}

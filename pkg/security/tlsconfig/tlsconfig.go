// Package tlsconfig builds client tls.Config values from a CA-file-or-
// skip-verification policy. It backs the Kubernetes API, Rancher, and
// Nomad polling strategies' HTTP clients (pkg/internal/httputil), each of
// which talks to an endpoint that may or may not present a certificate
// this process has a CA for.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
)

// Options defines TLS client configuration inputs.
type Options struct {
	Enable             bool
	CAFile             string
	InsecureSkipVerify bool
	ServerName         string
}

// Client returns a tls.Config for clients if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
	if !o.Enable {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
	if o.ServerName != "" {
		cfg.ServerName = o.ServerName
	}
	if o.CAFile != "" {
		ca, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(ca)
		cfg.RootCAs = pool
	}
	return cfg, nil
}

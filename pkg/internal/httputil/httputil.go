// Package httputil holds the HTTP client plumbing shared by the
// Kubernetes API, Rancher, and Nomad polling strategies (spec.md §4.10,
// §4.11): a 15s-timeout client, optional CA-file verification, and bearer
// token helpers. The TLS verification behavior itself is built on the
// project's tlsconfig.Options.Client() rather than a hand-rolled
// tls.Config.
package httputil

import (
	"net/http"
	"os"
	"strings"
	"time"

	tlsx "github.com/bitwalker/libcluster/pkg/security/tlsconfig"
)

// PollTimeout is the per-request timeout every HTTP-based polling
// strategy uses, per spec.md §5.
const PollTimeout = 15 * time.Second

// ClientOptions configures NewClient.
type ClientOptions struct {
	// CAFile, if non-empty and readable, is used to verify the peer. If it
	// is empty, the client skips verification (spec.md §4.10 step 4:
	// "If <sap>/ca.crt exists, verify peer with it; otherwise use
	// verify_none"). If it is non-empty but cannot be read, the client
	// uses Go's default TLS settings and verifies against the system roots.
	CAFile string
}

// NewClient builds an *http.Client with PollTimeout and the TLS
// verification behavior described by opts.
func NewClient(opts ClientOptions) *http.Client {
	tlsCfg, err := tlsx.Options{Enable: true, CAFile: opts.CAFile, InsecureSkipVerify: opts.CAFile == ""}.Client()
	if err != nil || tlsCfg == nil {
		tlsCfg = nil
	}
	return &http.Client{
		Timeout:   PollTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
}

// ReadTokenFile returns the trimmed contents of path, or "" if the file is
// missing, per spec.md §4.10 step 1 ("empty if missing").
func ReadTokenFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

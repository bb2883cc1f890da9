// Package trust turns a PEM trust anchor on disk into a client TLS configuration.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
)

// Anchor is a filesystem path to a PEM file holding the certificates
// trusted to identify the server.
type Anchor string

// Certificates reads and parses every CERTIFICATE block in the anchor file.
func (a Anchor) Certificates() ([]*x509.Certificate, error) {
	if a == "" {
		return nil, &wssrecv.ConfigurationError{Reason: "trust anchor path is empty"}
	}

	data, err := os.ReadFile(string(a))
	if err != nil {
		return nil, &wssrecv.ConfigurationError{Reason: fmt.Sprintf("cannot read trust anchor %s", a), Err: err}
	}

	certs, err := ParsePEM(data)
	if err != nil {
		return nil, &wssrecv.ConfigurationError{Reason: fmt.Sprintf("malformed trust anchor %s", a), Err: err}
	}
	return certs, nil
}

// Pool returns a certificate pool containing only the anchor's certificates.
func (a Anchor) Pool() (*x509.CertPool, error) {
	certs, err := a.Certificates()
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool, nil
}

// ClientConfig builds the TLS configuration used to verify the server.
// System roots are not consulted.
func (a Anchor) ClientConfig() (*tls.Config, error) {
	pool, err := a.Pool()
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// ParsePEM decodes all CERTIFICATE blocks in data. Other block types are
// skipped. At least one certificate must be present.
func ParsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", len(certs)+1, err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no PEM certificate found")
	}
	return certs, nil
}

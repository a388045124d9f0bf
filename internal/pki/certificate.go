package pki

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mr-tron/base58"
)

// CertValidation holds the state of a certificate at a point in time
type CertValidation struct {
	Subject       string
	Issuer        string
	SerialNumber  string
	Fingerprint   string
	NotBefore     time.Time
	NotAfter      time.Time
	DaysRemaining int
	Expired       bool
	CodeSigning   bool
}

// WriteCertificatePEM writes the certificate body to path, replacing any
// existing file.
func WriteCertificatePEM(path string, certPEM []byte) error {
	// #nosec G306 - certificates are public material
	if err := os.WriteFile(path, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate to %s: %w", path, err)
	}
	return nil
}

// ParseCertificatePEM decodes the first CERTIFICATE block in certPEM.
func ParseCertificatePEM(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}

	return x509.ParseCertificate(block.Bytes)
}

// LoadCertificate reads and parses a PEM certificate file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseCertificatePEM(certPEM)
}

// Fingerprint is the base58 encoded SHA-256 of the DER certificate.
func Fingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return base58.Encode(hash[:])
}

// Validate reports the validity of cert relative to now.
func Validate(cert *x509.Certificate, now time.Time) *CertValidation {
	return &CertValidation{
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SerialNumber:  cert.SerialNumber.Text(16),
		Fingerprint:   Fingerprint(cert),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		DaysRemaining: int(cert.NotAfter.Sub(now).Hours() / 24),
		Expired:       now.After(cert.NotAfter),
		CodeSigning:   IsCodeSigning(cert),
	}
}

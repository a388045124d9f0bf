package store

import (
	"context"
	"crypto/x509"
	"errors"
	"time"

	"github.com/wolfeidau/pcasign/internal/pki"
)

// ledgerRetention is how long an entry outlives its certificate before the TTL removes it.
const ledgerRetention = 30 * 24 * time.Hour

// CertMetadata records a code signing certificate issued by pcasign
type CertMetadata struct {
	SerialNumber   string    `dynamodbav:"serial_number"`
	Fingerprint    string    `dynamodbav:"fingerprint"`
	SubjectCN      string    `dynamodbav:"subject_cn"`
	SubjectDN      string    `dynamodbav:"subject_dn"`
	IssuerDN       string    `dynamodbav:"issuer_dn"`
	AuthorityARN   string    `dynamodbav:"authority_arn"`
	CertificateARN string    `dynamodbav:"certificate_arn,omitempty"`
	KeyID          string    `dynamodbav:"key_id"`
	KeyAlias       string    `dynamodbav:"key_alias,omitempty"`
	Region         string    `dynamodbav:"region"`
	IssuedAt       time.Time `dynamodbav:"issued_at"`
	ExpiresAt      time.Time `dynamodbav:"expires_at"`
	TTL            int64     `dynamodbav:"ttl"` // Unix seconds for DynamoDB TTL
}

// Issuance describes where a certificate came from.
type Issuance struct {
	AuthorityARN   string
	CertificateARN string
	KeyID          string
	KeyAlias       string
	Region         string
}

// CertificateStore is the ledger of issued certificates
type CertificateStore interface {
	// Get retrieves certificate metadata by serial number
	Get(ctx context.Context, serialNumber string) (*CertMetadata, error)

	// GetByFingerprint retrieves a certificate by its base58 SHA-256 fingerprint
	GetByFingerprint(ctx context.Context, fingerprint string) (*CertMetadata, error)

	// GetByAuthority retrieves all certificates issued by a certificate authority
	GetByAuthority(ctx context.Context, authorityARN string) ([]*CertMetadata, error)

	// Register stores certificate metadata
	Register(ctx context.Context, cert *CertMetadata) error

	// List returns registered certificates, oldest first
	List(ctx context.Context, opts ListCertificatesOptions) ([]*CertMetadata, error)
}

// ListCertificatesOptions specifies filters for listing certificates
type ListCertificatesOptions struct {
	AuthorityARN string // Filter by issuing authority (empty = all)
	Limit        int    // Max results (0 = no limit)
}

// Errors
var (
	ErrCertNotFound      = errors.New("certificate not found")
	ErrCertAlreadyExists = errors.New("certificate already exists")
	ErrThrottled         = errors.New("AWS request throttled")
)

// NewCertMetadataFromX509 creates CertMetadata from an issued X.509 certificate
func NewCertMetadataFromX509(cert *x509.Certificate, source Issuance) *CertMetadata {
	return &CertMetadata{
		SerialNumber:   cert.SerialNumber.Text(16),
		Fingerprint:    pki.Fingerprint(cert),
		SubjectCN:      cert.Subject.CommonName,
		SubjectDN:      cert.Subject.String(),
		IssuerDN:       cert.Issuer.String(),
		AuthorityARN:   source.AuthorityARN,
		CertificateARN: source.CertificateARN,
		KeyID:          source.KeyID,
		KeyAlias:       source.KeyAlias,
		Region:         source.Region,
		IssuedAt:       cert.NotBefore,
		ExpiresAt:      cert.NotAfter,
		TTL:            cert.NotAfter.Add(ledgerRetention).Unix(),
	}
}

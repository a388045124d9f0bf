package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryCertificateStore is an in-memory implementation of CertificateStore for dry runs and testing
type MemoryCertificateStore struct {
	mu                 sync.RWMutex
	certs              map[string]*CertMetadata // indexed by serial number
	certsByFingerprint map[string]*CertMetadata // indexed by fingerprint
}

// NewMemoryCertificateStore creates a new in-memory certificate store
func NewMemoryCertificateStore() *MemoryCertificateStore {
	return &MemoryCertificateStore{
		certs:              make(map[string]*CertMetadata),
		certsByFingerprint: make(map[string]*CertMetadata),
	}
}

// Get retrieves certificate metadata by serial number
func (s *MemoryCertificateStore) Get(ctx context.Context, serialNumber string) (*CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certs[serialNumber]
	if !exists {
		return nil, ErrCertNotFound
	}

	return copyCert(cert), nil
}

// GetByFingerprint retrieves a certificate by fingerprint
func (s *MemoryCertificateStore) GetByFingerprint(ctx context.Context, fingerprint string) (*CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certsByFingerprint[fingerprint]
	if !exists {
		return nil, ErrCertNotFound
	}

	return copyCert(cert), nil
}

// GetByAuthority retrieves all certificates issued by an authority
func (s *MemoryCertificateStore) GetByAuthority(ctx context.Context, authorityARN string) ([]*CertMetadata, error) {
	return s.List(ctx, ListCertificatesOptions{AuthorityARN: authorityARN})
}

// Register stores certificate metadata
func (s *MemoryCertificateStore) Register(ctx context.Context, cert *CertMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.SerialNumber]; exists {
		return ErrCertAlreadyExists
	}

	stored := copyCert(cert)
	s.certs[cert.SerialNumber] = stored
	s.certsByFingerprint[cert.Fingerprint] = stored

	return nil
}

// List returns registered certificates ordered by issue time
func (s *MemoryCertificateStore) List(ctx context.Context, opts ListCertificatesOptions) ([]*CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*CertMetadata, 0, len(s.certs))
	for _, cert := range s.certs {
		if opts.AuthorityARN != "" && cert.AuthorityARN != opts.AuthorityARN {
			continue
		}
		result = append(result, copyCert(cert))
	}

	slices.SortFunc(result, func(a, b *CertMetadata) int {
		return a.IssuedAt.Compare(b.IssuedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

func copyCert(cert *CertMetadata) *CertMetadata {
	c := *cert
	return &c
}

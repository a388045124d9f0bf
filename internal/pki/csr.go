package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
)

const pemTypeCSR = "CERTIFICATE REQUEST"

// GenerateCSR builds a PEM encoded PKCS #10 request for commonName, signed by signer.
func GenerateCSR(signer crypto.Signer, commonName string) ([]byte, error) {
	if commonName == "" {
		return nil, errors.New("common name is required")
	}

	template := &x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: commonName,
		},
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, template, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate request: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeCSR,
		Bytes: csrDER,
	}), nil
}

// ParseCSR decodes a PEM certificate request and checks its self-signature.
func ParseCSR(csrPEM []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != pemTypeCSR {
		return nil, errors.New("failed to decode certificate request PEM")
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate request: %w", err)
	}

	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("certificate request signature is invalid: %w", err)
	}

	return csr, nil
}

package pki

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
)

// OIDExtKeyUsageCodeSigning is id-kp-codeSigning (RFC 5280 4.2.1.12)
var OIDExtKeyUsageCodeSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 3}

// ErrNotCodeSigning is returned when a certificate lacks the code signing extended key usage
var ErrNotCodeSigning = errors.New("certificate is not valid for code signing")

// IsCodeSigning reports whether cert carries the code signing extended key usage.
func IsCodeSigning(cert *x509.Certificate) bool {
	for _, eku := range cert.ExtKeyUsage {
		if eku == x509.ExtKeyUsageCodeSigning {
			return true
		}
	}

	// unrecognised EKUs are kept as raw OIDs
	for _, oid := range cert.UnknownExtKeyUsage {
		if oid.Equal(OIDExtKeyUsageCodeSigning) {
			return true
		}
	}

	return false
}

// RequireCodeSigning returns ErrNotCodeSigning unless cert has the code signing
// extended key usage and, when key usage is set, the digital signature bit.
func RequireCodeSigning(cert *x509.Certificate) error {
	if !IsCodeSigning(cert) {
		return ErrNotCodeSigning
	}
	if cert.KeyUsage != 0 && cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return ErrNotCodeSigning
	}
	return nil
}

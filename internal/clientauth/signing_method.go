package clientauth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodSigner implements jwt.SigningMethod on top of a crypto.Signer,
// so tokens can be signed by keys that never leave KMS. Verification uses the
// standard method for the same algorithm and a local public key.
type SigningMethodSigner struct {
	Name    string
	Hash    crypto.Hash
	KeySize int // bytes per ECDSA coordinate, zero for RSA
}

var (
	SigningMethodSignerES256 = &SigningMethodSigner{Name: "ES256", Hash: crypto.SHA256, KeySize: 32}
	SigningMethodSignerES384 = &SigningMethodSigner{Name: "ES384", Hash: crypto.SHA384, KeySize: 48}
	SigningMethodSignerRS384 = &SigningMethodSigner{Name: "RS384", Hash: crypto.SHA384}
)

var _ jwt.SigningMethod = (*SigningMethodSigner)(nil)

// ErrUnsupportedKey is returned for public keys no signing method handles.
var ErrUnsupportedKey = errors.New("unsupported key for JWT signing")

// SigningMethodFor picks the signing method for a public key: ES256 or ES384
// for P-256 and P-384 keys, RS384 for RSA keys.
func SigningMethodFor(pub crypto.PublicKey) (*SigningMethodSigner, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return SigningMethodSignerES256, nil
		case elliptic.P384():
			return SigningMethodSignerES384, nil
		}
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
	case *rsa.PublicKey:
		return SigningMethodSignerRS384, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
}

func (m *SigningMethodSigner) Alg() string {
	return m.Name
}

// Sign hashes signingString and signs the digest with key, which must be a
// crypto.Signer. ECDSA signatures are converted from DER to the fixed width
// R || S form JWS requires.
func (m *SigningMethodSigner) Sign(signingString string, key interface{}) ([]byte, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	h := m.Hash.New()
	h.Write([]byte(signingString))

	sig, err := signer.Sign(rand.Reader, h.Sum(nil), m.Hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if m.KeySize == 0 {
		return sig, nil
	}
	return derToRaw(sig, m.KeySize)
}

// Verify checks sig with the standard method of the same name.
func (m *SigningMethodSigner) Verify(signingString string, sig []byte, key interface{}) error {
	method := jwt.GetSigningMethod(m.Name)
	if method == nil {
		return jwt.ErrSignatureInvalid
	}
	return method.Verify(signingString, sig, key)
}

func derToRaw(der []byte, size int) ([]byte, error) {
	var sig struct {
		R, S *big.Int
	}
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA signature: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after ECDSA signature")
	}
	if sig.R.BitLen() > size*8 || sig.S.BitLen() > size*8 {
		return nil, errors.New("ECDSA signature does not match key size")
	}

	out := make([]byte, 2*size)
	sig.R.FillBytes(out[:size])
	sig.S.FillBytes(out[size:])
	return out, nil
}

package store

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/pcasign/internal/pki"
)

func TestNewCertMetadataFromX509(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	notBefore := time.Now().Truncate(time.Second)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(0xbeef),
		Subject:      pkix.Name{CommonName: "Signer1"},
		Issuer:       pkix.Name{CommonName: "Signer1"},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	meta := NewCertMetadataFromX509(cert, Issuance{
		AuthorityARN: "arn:aws:acm-pca:us-east-1:111122223333:certificate-authority/abc",
		KeyID:        "key-123",
		KeyAlias:     "alias/my-key-alias",
		Region:       "us-east-1",
	})

	require.Equal(t, "beef", meta.SerialNumber)
	require.Equal(t, pki.Fingerprint(cert), meta.Fingerprint)
	require.Equal(t, "Signer1", meta.SubjectCN)
	require.Equal(t, "CN=Signer1", meta.SubjectDN)
	require.Equal(t, "key-123", meta.KeyID)
	require.Equal(t, cert.NotAfter.Add(ledgerRetention).Unix(), meta.TTL)
}

func TestWrapAWSError(t *testing.T) {
	require.NoError(t, wrapAWSError(nil, "ignored"))

	err := wrapAWSError(&types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}, "failed to register certificate")
	require.ErrorIs(t, err, ErrThrottled)

	err = wrapAWSError(errors.New("api error ThrottlingException: Rate exceeded"), "failed to list certificates")
	require.ErrorIs(t, err, ErrThrottled)

	cause := errors.New("boom")
	err = wrapAWSError(cause, "failed to get certificate")
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrThrottled)
	require.Contains(t, err.Error(), "failed to get certificate")
}

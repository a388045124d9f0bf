package pca

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/pcasign/internal/awsfake"
	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/region"
)

func TestSigningAlgorithmFor(t *testing.T) {
	tests := []struct {
		alg  types.KeyAlgorithm
		want types.SigningAlgorithm
	}{
		{types.KeyAlgorithmEcPrime256v1, types.SigningAlgorithmSha256withecdsa},
		{types.KeyAlgorithmEcSecp384r1, types.SigningAlgorithmSha384withecdsa},
		{types.KeyAlgorithmRsa2048, types.SigningAlgorithmSha256withrsa},
		{types.KeyAlgorithmRsa4096, types.SigningAlgorithmSha256withrsa},
		{"", types.SigningAlgorithmSha256withecdsa},
	}

	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			assert.Equal(t, tt.want, SigningAlgorithmFor(tt.alg))
		})
	}
}

func TestService_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("no authorities", func(t *testing.T) {
		svc := New(awsfake.NewPCA("us-east-1"), Config{Region: region.USEast1})

		_, err := svc.Find(ctx, "RootCA")
		require.ErrorIs(t, err, ErrAuthorityNotFound)
	})

	t.Run("matches by common name", func(t *testing.T) {
		fake := awsfake.NewPCA("us-east-1")
		svc := New(fake, Config{Region: region.USEast1})

		other, err := svc.Create(ctx, "OtherCA")
		require.NoError(t, err)
		created, err := svc.Create(ctx, "RootCA")
		require.NoError(t, err)
		require.NotEqual(t, other.ARN, created.ARN)

		found, err := svc.Find(ctx, "RootCA")
		require.NoError(t, err)
		require.Equal(t, created.ARN, found.ARN)
		require.Equal(t, "RootCA", found.CommonName)
		require.Equal(t, types.CertificateAuthorityStatusActive, found.Status)
		require.Equal(t, 2, fake.CreateCalls)
	})

	t.Run("ignores subordinate authorities", func(t *testing.T) {
		fake := awsfake.NewPCA("us-east-1")
		_, err := fake.CreateCertificateAuthority(ctx, &acmpca.CreateCertificateAuthorityInput{
			CertificateAuthorityType: types.CertificateAuthorityTypeSubordinate,
			CertificateAuthorityConfiguration: &types.CertificateAuthorityConfiguration{
				Subject: &types.ASN1Subject{CommonName: aws.String("RootCA")},
			},
		})
		require.NoError(t, err)

		svc := New(fake, Config{Region: region.USEast1})
		_, err = svc.Find(ctx, "RootCA")
		require.ErrorIs(t, err, ErrAuthorityNotFound)
	})

	t.Run("activates a pending authority", func(t *testing.T) {
		fake := awsfake.NewPCA("us-east-1")
		out, err := fake.CreateCertificateAuthority(ctx, &acmpca.CreateCertificateAuthorityInput{
			CertificateAuthorityType: types.CertificateAuthorityTypeRoot,
			CertificateAuthorityConfiguration: &types.CertificateAuthorityConfiguration{
				KeyAlgorithm:     types.KeyAlgorithmEcPrime256v1,
				SigningAlgorithm: types.SigningAlgorithmSha256withecdsa,
				Subject:          &types.ASN1Subject{CommonName: aws.String("RootCA")},
			},
		})
		require.NoError(t, err)

		svc := New(fake, Config{Region: region.USEast1})
		found, err := svc.Find(ctx, "RootCA")
		require.NoError(t, err)
		require.Equal(t, aws.ToString(out.CertificateAuthorityArn), found.ARN)
		require.Equal(t, types.CertificateAuthorityStatusActive, found.Status)
	})

	t.Run("list errors are surfaced", func(t *testing.T) {
		svc := New(&failingPCA{PCA: awsfake.NewPCA("us-east-1"), listErr: errors.New("AccessDeniedException")}, Config{})

		_, err := svc.Find(ctx, "RootCA")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrAuthorityNotFound)
	})
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	fake := awsfake.NewPCA("eu-west-2")
	svc := New(fake, Config{Region: region.EUWest2})

	authority, err := svc.Create(ctx, "RootCA")
	require.NoError(t, err)
	require.Equal(t, "RootCA", authority.CommonName)
	require.Equal(t, region.EUWest2, authority.Region)
	require.Equal(t, types.CertificateAuthorityStatusActive, authority.Status)
	require.Contains(t, authority.ARN, ":eu-west-2:")
	require.Equal(t, types.KeyAlgorithmEcPrime256v1, authority.KeyAlgorithm)
	require.Equal(t, 1, fake.IssueCalls)
}

func TestService_Issue(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*awsfake.PCA, *Service, *Authority, []byte) {
		t.Helper()

		fake := awsfake.NewPCA("us-east-1")
		svc := New(fake, Config{Region: region.USEast1})
		authority, err := svc.Create(ctx, "RootCA")
		require.NoError(t, err)

		kmsFake := awsfake.NewKMS("us-east-1")
		keyOut, err := kmsFake.CreateKey(ctx, &kms.CreateKeyInput{
			KeySpec:  kmstypes.KeySpecEccNistP256,
			KeyUsage: kmstypes.KeyUsageTypeSignVerify,
		})
		require.NoError(t, err)

		signer, err := pki.NewKMSSigner(ctx, kmsFake, aws.ToString(keyOut.KeyMetadata.KeyId))
		require.NoError(t, err)

		csr, err := pki.GenerateCSR(signer, "Signer1")
		require.NoError(t, err)

		return fake, svc, authority, csr
	}

	t.Run("issues a code signing certificate", func(t *testing.T) {
		_, svc, authority, csr := setup(t)

		cert, err := svc.Issue(ctx, authority, csr)
		require.NoError(t, err)
		require.NotEmpty(t, cert.ARN)
		require.NotEmpty(t, cert.ChainPEM)

		parsed, err := pki.ParseCertificatePEM([]byte(cert.PEM))
		require.NoError(t, err)
		require.Equal(t, "Signer1", parsed.Subject.CommonName)
		require.Equal(t, "RootCA", parsed.Issuer.CommonName)
		require.True(t, pki.IsCodeSigning(parsed))
	})

	t.Run("issuer errors are surfaced", func(t *testing.T) {
		fake, svc, authority, csr := setup(t)
		rejected := &types.InvalidRequestException{Message: aws.String("policy rejected the request")}
		fake.IssueErr = rejected

		_, err := svc.Issue(ctx, authority, csr)
		var invalid *types.InvalidRequestException
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("malformed request", func(t *testing.T) {
		_, svc, authority, _ := setup(t)

		_, err := svc.Issue(ctx, authority, []byte("not a csr"))
		var malformed *types.MalformedCSRException
		require.ErrorAs(t, err, &malformed)
	})
}

type failingPCA struct {
	*awsfake.PCA
	listErr error
}

func (f *failingPCA) ListCertificateAuthorities(ctx context.Context, params *acmpca.ListCertificateAuthoritiesInput, optFns ...func(*acmpca.Options)) (*acmpca.ListCertificateAuthoritiesOutput, error) {
	return nil, f.listErr
}

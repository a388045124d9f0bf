package keys

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/pcasign/internal/awsfake"
	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/region"
)

func TestAliasName(t *testing.T) {
	require.Equal(t, "alias/my-key-alias", AliasName("my-key-alias"))
	require.Equal(t, "alias/my-key-alias", AliasName("alias/my-key-alias"))
}

func TestService_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("missing alias", func(t *testing.T) {
		svc := New(awsfake.NewKMS("us-east-1"), Config{Region: region.USEast1})

		_, err := svc.Find(ctx, "my-key-alias")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("existing alias", func(t *testing.T) {
		fake := awsfake.NewKMS("us-east-1")
		svc := New(fake, Config{Region: region.USEast1})

		created, err := svc.Create(ctx, "my-key-alias")
		require.NoError(t, err)

		found, err := svc.Find(ctx, "my-key-alias")
		require.NoError(t, err)
		require.Equal(t, created, found)
		require.Equal(t, 1, fake.CreateKeyCalls)
	})

	t.Run("encryption key is unusable", func(t *testing.T) {
		fake := awsfake.NewKMS("us-east-1")
		out, err := fake.CreateKey(ctx, &kms.CreateKeyInput{
			KeySpec:  types.KeySpecRsa2048,
			KeyUsage: types.KeyUsageTypeEncryptDecrypt,
		})
		require.NoError(t, err)
		_, err = fake.CreateAlias(ctx, &kms.CreateAliasInput{
			AliasName:   aws.String("alias/encrypt-only"),
			TargetKeyId: out.KeyMetadata.KeyId,
		})
		require.NoError(t, err)

		svc := New(fake, Config{Region: region.USEast1})
		_, err = svc.Find(ctx, "encrypt-only")
		require.ErrorIs(t, err, ErrUnusableKey)
	})

	t.Run("other errors are surfaced", func(t *testing.T) {
		svc := New(&failingKMS{KMS: awsfake.NewKMS("us-east-1"), err: errors.New("AccessDeniedException")}, Config{})

		_, err := svc.Find(ctx, "my-key-alias")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to P-256", func(t *testing.T) {
		svc := New(awsfake.NewKMS("eu-west-2"), Config{Region: region.EUWest2})

		key, err := svc.Create(ctx, "my-key-alias")
		require.NoError(t, err)
		require.Equal(t, "alias/my-key-alias", key.Alias)
		require.Equal(t, region.EUWest2, key.Region)
		require.Equal(t, types.KeySpecEccNistP256, key.KeySpec)
		require.Contains(t, key.ARN, ":eu-west-2:")
	})

	t.Run("duplicate alias is an error", func(t *testing.T) {
		svc := New(awsfake.NewKMS("us-east-1"), Config{Region: region.USEast1})

		_, err := svc.Create(ctx, "my-key-alias")
		require.NoError(t, err)

		_, err = svc.Create(ctx, "my-key-alias")
		var exists *types.AlreadyExistsException
		require.ErrorAs(t, err, &exists)
	})
}

func TestService_Signer(t *testing.T) {
	ctx := context.Background()
	svc := New(awsfake.NewKMS("us-east-1"), Config{Region: region.USEast1, KeySpec: types.KeySpecEccNistP384})

	key, err := svc.Create(ctx, "my-key-alias")
	require.NoError(t, err)

	signer, err := svc.Signer(ctx, key)
	require.NoError(t, err)

	csrPEM, err := pki.GenerateCSR(signer, "Signer1")
	require.NoError(t, err)

	csr, err := pki.ParseCSR(csrPEM)
	require.NoError(t, err)
	require.Equal(t, "Signer1", csr.Subject.CommonName)
}

type failingKMS struct {
	*awsfake.KMS
	err error
}

func (f *failingKMS) DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	return nil, f.err
}

package provision

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	pcatypes "github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/pcasign/internal/awsfake"
	"github.com/wolfeidau/pcasign/internal/keys"
	"github.com/wolfeidau/pcasign/internal/pca"
	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/prompt"
	"github.com/wolfeidau/pcasign/internal/region"
	"github.com/wolfeidau/pcasign/internal/ssmcerts"
	"github.com/wolfeidau/pcasign/internal/store"
)

type testEnv struct {
	pca      *awsfake.PCA
	kms      *awsfake.KMS
	workflow *Workflow
}

func newTestEnv(t *testing.T, r region.Region) *testEnv {
	t.Helper()

	pcaFake := awsfake.NewPCA(string(r))
	kmsFake := awsfake.NewKMS(string(r))
	authorities := pca.New(pcaFake, pca.Config{Region: r})
	signingKeys := keys.New(kmsFake, keys.Config{Region: r})

	return &testEnv{
		pca: pcaFake,
		kms: kmsFake,
		workflow: &Workflow{
			Authorities: authorities,
			Keys:        signingKeys,
			Issuer:      authorities,
			Signers:     signingKeys,
			OutputPath:  filepath.Join(t.TempDir(), DefaultOutputPath),
		},
	}
}

func exampleInput() prompt.Input {
	return prompt.Input{
		RootCommonName:      "RootCA",
		EndEntityCommonName: "Signer1",
		KeyAlias:            "my-key-alias",
		Region:              region.USEast1,
	}
}

type recordingPublisher struct {
	published []*ssmcerts.Parameters
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, params *ssmcerts.Parameters) error {
	p.published = append(p.published, params)
	return p.err
}

func TestWorkflow_Run(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, region.USEast1)

	res, err := env.workflow.Run(ctx, exampleInput())
	require.NoError(t, err)

	require.True(t, res.CreatedAuthority)
	require.True(t, res.CreatedKey)
	require.Equal(t, "RootCA", res.Authority.CommonName)
	require.Equal(t, region.USEast1, res.Authority.Region)
	require.Contains(t, res.Authority.ARN, ":us-east-1:")
	require.Equal(t, "alias/my-key-alias", res.Key.Alias)
	require.Equal(t, region.USEast1, res.Key.Region)
	require.Contains(t, res.Key.ARN, ":us-east-1:")

	written, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	require.Equal(t, res.Certificate.PEM, string(written))

	cert, err := pki.ParseCertificatePEM(written)
	require.NoError(t, err)
	require.Equal(t, "Signer1", cert.Subject.CommonName)
	require.Equal(t, "RootCA", cert.Issuer.CommonName)
	require.True(t, pki.IsCodeSigning(cert))

	// the certificate binds the KMS key
	signer, err := pki.NewKMSSigner(ctx, env.kms, res.Key.KeyID)
	require.NoError(t, err)
	require.True(t, signer.Public().(*ecdsa.PublicKey).Equal(cert.PublicKey))
}

func TestWorkflow_RunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, region.USEast1)

	first, err := env.workflow.Run(ctx, exampleInput())
	require.NoError(t, err)

	second, err := env.workflow.Run(ctx, exampleInput())
	require.NoError(t, err)

	require.False(t, second.CreatedAuthority)
	require.False(t, second.CreatedKey)
	require.Equal(t, first.Authority.ARN, second.Authority.ARN)
	require.Equal(t, first.Key.KeyID, second.Key.KeyID)
	require.NotEqual(t, first.Certificate.ARN, second.Certificate.ARN)

	require.Equal(t, 1, env.pca.CreateCalls)
	require.Equal(t, 1, env.kms.CreateKeyCalls)
	require.Equal(t, 1, env.pca.Authorities())
}

func TestWorkflow_RunWritesIssuerPEM(t *testing.T) {
	env := newTestEnv(t, region.USEast1)
	env.pca.CertificatePEM = "-----BEGIN CERTIFICATE-----\nZmFrZQ==\n-----END CERTIFICATE-----\n"

	res, err := env.workflow.Run(context.Background(), exampleInput())
	require.NoError(t, err)

	written, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	require.Equal(t, env.pca.CertificatePEM, string(written))
}

func TestWorkflow_RunIssuerError(t *testing.T) {
	t.Run("output is not created", func(t *testing.T) {
		env := newTestEnv(t, region.USEast1)
		env.pca.IssueErr = &pcatypes.InvalidStateException{Message: aws.String("certificate authority is DISABLED")}

		_, err := env.workflow.Run(context.Background(), exampleInput())

		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		require.Equal(t, StepIssue, stepErr.Step)
		require.Equal(t, 1, stepErr.ExitCode())

		var invalid *pcatypes.InvalidStateException
		require.ErrorAs(t, err, &invalid)

		_, statErr := os.Stat(env.workflow.OutputPath)
		require.True(t, os.IsNotExist(statErr))
	})

	t.Run("existing output is untouched", func(t *testing.T) {
		env := newTestEnv(t, region.USEast1)
		env.pca.IssueErr = errors.New("issuance rejected")
		require.NoError(t, os.WriteFile(env.workflow.OutputPath, []byte("previous"), 0o644))

		_, err := env.workflow.Run(context.Background(), exampleInput())
		require.Error(t, err)

		contents, readErr := os.ReadFile(env.workflow.OutputPath)
		require.NoError(t, readErr)
		require.Equal(t, "previous", string(contents))
	})
}

func TestWorkflow_RunUnwritableOutput(t *testing.T) {
	env := newTestEnv(t, region.USEast1)
	env.workflow.OutputPath = filepath.Join(t.TempDir(), "missing", DefaultOutputPath)

	_, err := env.workflow.Run(context.Background(), exampleInput())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepWrite, stepErr.Step)

	// root certificate plus the end entity certificate
	require.Equal(t, 2, env.pca.IssueCalls)
}

func TestWorkflow_RunStopsOnKeyLookupFailure(t *testing.T) {
	env := newTestEnv(t, region.USEast1)
	cause := errors.New("AccessDeniedException")
	env.workflow.Keys = &failingKeys{err: cause}

	_, err := env.workflow.Run(context.Background(), exampleInput())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepKey, stepErr.Step)
	require.ErrorIs(t, err, cause)
	require.Zero(t, env.kms.CreateKeyCalls)

	// forward only: the authority created before the failure stays
	require.Equal(t, 1, env.pca.Authorities())
}

func TestWorkflow_RunRecordsAndPublishes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, region.EUWest2)
	ledger := store.NewMemoryCertificateStore()
	publisher := &recordingPublisher{}
	env.workflow.Ledger = ledger
	env.workflow.Publisher = publisher

	in := exampleInput()
	in.Region = region.EUWest2

	res, err := env.workflow.Run(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, res.Metadata)

	recorded, err := ledger.Get(ctx, res.Metadata.SerialNumber)
	require.NoError(t, err)
	require.Equal(t, "Signer1", recorded.SubjectCN)
	require.Equal(t, res.Authority.ARN, recorded.AuthorityARN)
	require.Equal(t, res.Key.KeyID, recorded.KeyID)
	require.Equal(t, "eu-west-2", recorded.Region)

	require.Len(t, publisher.published, 1)
	require.Equal(t, res.Certificate.PEM, publisher.published[0].CertificatePEM)
	require.Equal(t, res.Authority.ARN, publisher.published[0].AuthorityARN)
}

func TestWorkflow_RunPublishFailureKeepsOutput(t *testing.T) {
	env := newTestEnv(t, region.USEast1)
	env.workflow.Publisher = &recordingPublisher{err: errors.New("AccessDeniedException")}

	_, err := env.workflow.Run(context.Background(), exampleInput())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepPublish, stepErr.Step)
	require.FileExists(t, env.workflow.OutputPath)
}

func TestStepError(t *testing.T) {
	cause := errors.New("boom")
	err := &StepError{Step: StepCSR, Err: cause}

	require.Equal(t, "generate-csr failed: boom", err.Error())
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, err.ExitCode())
}

type failingKeys struct {
	err error
}

func (f *failingKeys) Find(ctx context.Context, name string) (*keys.SigningKey, error) {
	return nil, f.err
}

func (f *failingKeys) Create(ctx context.Context, name string) (*keys.SigningKey, error) {
	return nil, errors.New("unexpected create")
}

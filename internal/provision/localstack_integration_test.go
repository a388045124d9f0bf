//go:build integration

package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/pcasign/internal/awsfake"
	"github.com/wolfeidau/pcasign/internal/bootstrap"
	"github.com/wolfeidau/pcasign/internal/keys"
	"github.com/wolfeidau/pcasign/internal/pca"
	"github.com/wolfeidau/pcasign/internal/region"
	"github.com/wolfeidau/pcasign/internal/ssmcerts"
	"github.com/wolfeidau/pcasign/internal/store"
)

const testLedgerTable = "pcasign-integration-certificates"

// setupLocalStack starts LocalStack with KMS, SSM and DynamoDB. Private CA
// is not available in the community image so the CA side stays in memory.
func setupLocalStack(t *testing.T, ctx context.Context) (aws.Config, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:4",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES": "kms,ssm,dynamodb",
		},
		WaitingFor: wait.ForHTTP("/_localstack/health").WithPort("4566/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(string(region.USEast1)),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		config.WithBaseEndpoint(fmt.Sprintf("http://%s:%s", host, port.Port())),
	)
	require.NoError(t, err)

	return cfg, func() { _ = container.Terminate(ctx) }
}

func TestIntegration_WorkflowLocalStack(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := setupLocalStack(t, ctx)
	defer cleanup()

	dynamoClient := dynamodb.NewFromConfig(cfg)
	res, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		DynamoClient: dynamoClient,
		TableName:    testLedgerTable,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, bootstrap.Cleanup(ctx, bootstrap.Config{DynamoClient: dynamoClient, TableName: testLedgerTable}, res))
	}()

	authorities := pca.New(awsfake.NewPCA(string(region.USEast1)), pca.Config{Region: region.USEast1})
	signingKeys := keys.New(kms.NewFromConfig(cfg), keys.Config{Region: region.USEast1})
	ledger := store.NewDynamoDBCertificateStore(dynamoClient, testLedgerTable)
	published := ssmcerts.New(ssm.NewFromConfig(cfg), "/pcasign/integration")

	workflow := &Workflow{
		Authorities: authorities,
		Keys:        signingKeys,
		Issuer:      authorities,
		Signers:     signingKeys,
		OutputPath:  filepath.Join(t.TempDir(), DefaultOutputPath),
		Ledger:      ledger,
		Publisher:   published,
	}

	first, err := workflow.Run(ctx, exampleInput())
	require.NoError(t, err)
	require.True(t, first.CreatedKey)

	t.Run("key is reused", func(t *testing.T) {
		second, err := workflow.Run(ctx, exampleInput())
		require.NoError(t, err)
		require.False(t, second.CreatedKey)
		require.Equal(t, first.Key.KeyID, second.Key.KeyID)
	})

	t.Run("certificate is recorded", func(t *testing.T) {
		got, err := ledger.Get(ctx, first.Metadata.SerialNumber)
		require.NoError(t, err)
		require.Equal(t, "Signer1", got.SubjectCN)
		require.Equal(t, first.Key.KeyID, got.KeyID)

		byFingerprint, err := ledger.GetByFingerprint(ctx, first.Metadata.Fingerprint)
		require.NoError(t, err)
		require.Equal(t, first.Metadata.SerialNumber, byFingerprint.SerialNumber)

		certs, err := ledger.List(ctx, store.ListCertificatesOptions{AuthorityARN: first.Authority.ARN})
		require.NoError(t, err)
		require.Len(t, certs, 2)
	})

	t.Run("parameters are published", func(t *testing.T) {
		params, err := published.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, first.Authority.ARN, params.AuthorityARN)
		require.Equal(t, first.Key.KeyID, params.KeyID)
	})
}

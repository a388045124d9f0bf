package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go/middleware"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/awsfake"
	"github.com/wolfeidau/pcasign/internal/bootstrap"
	"github.com/wolfeidau/pcasign/internal/keys"
	"github.com/wolfeidau/pcasign/internal/logger"
	"github.com/wolfeidau/pcasign/internal/pca"
	"github.com/wolfeidau/pcasign/internal/region"
	"github.com/wolfeidau/pcasign/internal/ssmcerts"
	"github.com/wolfeidau/pcasign/internal/store"
)

type Globals struct {
	Debug   bool
	Version string
}

// AWSFlags are shared by every command that talks to AWS.
type AWSFlags struct {
	AWSEndpoint string `help:"AWS endpoint (for LocalStack)" env:"AWS_ENDPOINT" default:""`
	DryRun      bool   `help:"use in-memory AWS services, nothing is created in your account" default:"false"`
}

type ledgerAPI interface {
	store.DynamoDBAPI
	bootstrap.TableAPI
}

// services holds the AWS clients for one region. In a dry run the clients
// are in-memory fakes and the DynamoDB client is nil.
type services struct {
	region   region.Region
	dryRun   bool
	pca      pca.API
	kms      keys.API
	ssm      ssmcerts.API
	dynamodb ledgerAPI
}

func (f AWSFlags) awsServices(ctx context.Context, r region.Region) (*services, error) {
	if f.DryRun {
		log.Warn().Str("region", string(r)).Msg("Dry run, using in-memory AWS services")
		return &services{
			region: r,
			dryRun: true,
			pca:    awsfake.NewPCA(string(r)),
			kms:    awsfake.NewKMS(string(r)),
			ssm:    awsfake.NewSSM(),
		}, nil
	}

	awsConfig, err := loadAWSConfig(ctx, r, f.AWSEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &services{
		region:   r,
		pca:      acmpca.NewFromConfig(awsConfig),
		kms:      kms.NewFromConfig(awsConfig),
		ssm:      ssm.NewFromConfig(awsConfig),
		dynamodb: dynamodb.NewFromConfig(awsConfig),
	}, nil
}

// ledger returns the certificate ledger, creating the table if ensure is set.
func (s *services) ledger(ctx context.Context, table string, ensure bool) (store.CertificateStore, error) {
	if s.dryRun {
		return store.NewMemoryCertificateStore(), nil
	}

	if ensure {
		if _, err := bootstrap.Bootstrap(ctx, bootstrap.Config{DynamoClient: s.dynamodb, TableName: table}); err != nil {
			return nil, err
		}
	}

	return store.NewDynamoDBCertificateStore(s.dynamodb, table), nil
}

// loadAWSConfig loads AWS configuration for r with optional endpoint override
func loadAWSConfig(ctx context.Context, r region.Region, endpoint string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(string(r)),
		config.WithAPIOptions([]func(*middleware.Stack) error{
			logger.NewAWSRequests(log.Logger).Register,
		}),
	}

	if endpoint != "" {
		// Use BaseEndpoint for LocalStack support
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// Package pca provisions root certificate authorities in AWS Private CA and
// issues code signing certificates from them.
package pca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/region"
)

const (
	// RootCATemplateARN is the template used to self sign a root CA certificate.
	RootCATemplateARN = "arn:aws:acm-pca:::template/RootCACertificate/V1"

	// CodeSigningTemplateARN is the template used for end entity code signing certificates.
	CodeSigningTemplateARN = "arn:aws:acm-pca:::template/CodeSigningCertificate/V1"

	defaultValidityDays      = 365
	defaultRootValidityYears = 10
	defaultWaitTimeout       = 5 * time.Minute
	defaultActivationTimeout = 2 * time.Minute
)

// ErrAuthorityNotFound is returned when no root CA has the requested common name.
var ErrAuthorityNotFound = errors.New("certificate authority not found")

// API is the part of the AWS Private CA client used by the service.
type API interface {
	ListCertificateAuthorities(ctx context.Context, params *acmpca.ListCertificateAuthoritiesInput, optFns ...func(*acmpca.Options)) (*acmpca.ListCertificateAuthoritiesOutput, error)
	CreateCertificateAuthority(ctx context.Context, params *acmpca.CreateCertificateAuthorityInput, optFns ...func(*acmpca.Options)) (*acmpca.CreateCertificateAuthorityOutput, error)
	DescribeCertificateAuthority(ctx context.Context, params *acmpca.DescribeCertificateAuthorityInput, optFns ...func(*acmpca.Options)) (*acmpca.DescribeCertificateAuthorityOutput, error)
	GetCertificateAuthorityCsr(ctx context.Context, params *acmpca.GetCertificateAuthorityCsrInput, optFns ...func(*acmpca.Options)) (*acmpca.GetCertificateAuthorityCsrOutput, error)
	ImportCertificateAuthorityCertificate(ctx context.Context, params *acmpca.ImportCertificateAuthorityCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.ImportCertificateAuthorityCertificateOutput, error)
	IssueCertificate(ctx context.Context, params *acmpca.IssueCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.IssueCertificateOutput, error)
	GetCertificate(ctx context.Context, params *acmpca.GetCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.GetCertificateOutput, error)
}

// Authority is a root certificate authority identified by common name and region.
type Authority struct {
	ARN              string
	CommonName       string
	Region           region.Region
	Status           types.CertificateAuthorityStatus
	KeyAlgorithm     types.KeyAlgorithm
	SigningAlgorithm types.SigningAlgorithm
}

// Certificate is an issued certificate and the chain up to its root.
type Certificate struct {
	ARN      string
	PEM      string
	ChainPEM string
}

// Config controls how authorities are created and certificates issued.
type Config struct {
	Region           region.Region
	KeyAlgorithm     types.KeyAlgorithm
	SigningAlgorithm types.SigningAlgorithm
	// ValidityDays is the lifetime of issued code signing certificates.
	ValidityDays int64
	// RootValidityYears is the lifetime of a new root CA certificate.
	RootValidityYears int64
	Tags              map[string]string

	// WaitTimeout bounds each SDK waiter (CA CSR creation, certificate issuance).
	WaitTimeout time.Duration
	// ActivationTimeout bounds polling for a new authority to become ACTIVE.
	ActivationTimeout time.Duration
}

// Service finds, creates and issues from root CAs in one region.
type Service struct {
	client API
	cfg    Config
}

// New creates a Private CA service, filling in defaults for unset config.
func New(client API, cfg Config) *Service {
	if cfg.KeyAlgorithm == "" {
		cfg.KeyAlgorithm = types.KeyAlgorithmEcPrime256v1
	}
	if cfg.SigningAlgorithm == "" {
		cfg.SigningAlgorithm = SigningAlgorithmFor(cfg.KeyAlgorithm)
	}
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = defaultValidityDays
	}
	if cfg.RootValidityYears <= 0 {
		cfg.RootValidityYears = defaultRootValidityYears
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.ActivationTimeout <= 0 {
		cfg.ActivationTimeout = defaultActivationTimeout
	}
	return &Service{client: client, cfg: cfg}
}

// SigningAlgorithmFor returns the signing algorithm paired with a CA key algorithm.
func SigningAlgorithmFor(alg types.KeyAlgorithm) types.SigningAlgorithm {
	switch alg {
	case types.KeyAlgorithmEcSecp384r1:
		return types.SigningAlgorithmSha384withecdsa
	case types.KeyAlgorithmRsa2048, types.KeyAlgorithmRsa3072, types.KeyAlgorithmRsa4096:
		return types.SigningAlgorithmSha256withrsa
	default:
		return types.SigningAlgorithmSha256withecdsa
	}
}

// Find returns the root CA whose subject common name is commonName. Deleted
// and failed authorities are ignored. An authority still waiting for its
// certificate is activated before it is returned.
func (s *Service) Find(ctx context.Context, commonName string) (*Authority, error) {
	paginator := acmpca.NewListCertificateAuthoritiesPaginator(s.client, &acmpca.ListCertificateAuthoritiesInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list certificate authorities: %w", err)
		}

		for _, ca := range page.CertificateAuthorities {
			if !matches(ca, commonName) {
				continue
			}

			authority := s.authority(ca)
			log.Debug().
				Str("arn", authority.ARN).
				Str("status", string(authority.Status)).
				Msg("Found existing certificate authority")

			if authority.Status == types.CertificateAuthorityStatusPendingCertificate ||
				authority.Status == types.CertificateAuthorityStatusCreating {
				return s.activate(ctx, authority)
			}
			return authority, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrAuthorityNotFound, commonName)
}

// Create makes a new root CA named commonName, installs a self signed
// certificate and waits until it is ACTIVE.
func (s *Service) Create(ctx context.Context, commonName string) (*Authority, error) {
	out, err := s.client.CreateCertificateAuthority(ctx, &acmpca.CreateCertificateAuthorityInput{
		CertificateAuthorityType: types.CertificateAuthorityTypeRoot,
		CertificateAuthorityConfiguration: &types.CertificateAuthorityConfiguration{
			KeyAlgorithm:     s.cfg.KeyAlgorithm,
			SigningAlgorithm: s.cfg.SigningAlgorithm,
			Subject:          &types.ASN1Subject{CommonName: aws.String(commonName)},
		},
		IdempotencyToken: aws.String(uuid.NewString()),
		Tags:             pcaTags(s.cfg.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate authority %s: %w", commonName, err)
	}

	log.Info().
		Str("arn", aws.ToString(out.CertificateAuthorityArn)).
		Str("common_name", commonName).
		Msg("Created certificate authority")

	return s.activate(ctx, &Authority{
		ARN:              aws.ToString(out.CertificateAuthorityArn),
		CommonName:       commonName,
		Region:           s.cfg.Region,
		Status:           types.CertificateAuthorityStatusCreating,
		KeyAlgorithm:     s.cfg.KeyAlgorithm,
		SigningAlgorithm: s.cfg.SigningAlgorithm,
	})
}

func matches(ca types.CertificateAuthority, commonName string) bool {
	if ca.Type != types.CertificateAuthorityTypeRoot {
		return false
	}
	switch ca.Status {
	case types.CertificateAuthorityStatusDeleted, types.CertificateAuthorityStatusFailed:
		return false
	}
	cfg := ca.CertificateAuthorityConfiguration
	if cfg == nil || cfg.Subject == nil {
		return false
	}
	return aws.ToString(cfg.Subject.CommonName) == commonName
}

func (s *Service) authority(ca types.CertificateAuthority) *Authority {
	a := &Authority{
		ARN:    aws.ToString(ca.Arn),
		Region: s.cfg.Region,
		Status: ca.Status,
	}
	if cfg := ca.CertificateAuthorityConfiguration; cfg != nil {
		a.KeyAlgorithm = cfg.KeyAlgorithm
		a.SigningAlgorithm = cfg.SigningAlgorithm
		if cfg.Subject != nil {
			a.CommonName = aws.ToString(cfg.Subject.CommonName)
		}
	}
	if a.SigningAlgorithm == "" {
		a.SigningAlgorithm = SigningAlgorithmFor(a.KeyAlgorithm)
	}
	return a
}

func pcaTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}

	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}

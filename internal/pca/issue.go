package pca

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Issue requests a code signing certificate for csrPEM from authority and
// blocks until it has been issued.
func (s *Service) Issue(ctx context.Context, authority *Authority, csrPEM []byte) (*Certificate, error) {
	signingAlgorithm := authority.SigningAlgorithm
	if signingAlgorithm == "" {
		signingAlgorithm = s.cfg.SigningAlgorithm
	}

	out, err := s.client.IssueCertificate(ctx, &acmpca.IssueCertificateInput{
		CertificateAuthorityArn: aws.String(authority.ARN),
		Csr:                     csrPEM,
		SigningAlgorithm:        signingAlgorithm,
		TemplateArn:             aws.String(CodeSigningTemplateARN),
		Validity: &types.Validity{
			Type:  types.ValidityPeriodTypeDays,
			Value: aws.Int64(s.cfg.ValidityDays),
		},
		IdempotencyToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate from %s: %w", authority.ARN, err)
	}

	log.Debug().
		Str("certificate_arn", aws.ToString(out.CertificateArn)).
		Msg("Certificate requested")

	return s.waitForCertificate(ctx, authority.ARN, aws.ToString(out.CertificateArn))
}

func (s *Service) waitForCertificate(ctx context.Context, caArn, certArn string) (*Certificate, error) {
	waiter := acmpca.NewCertificateIssuedWaiter(s.client)
	out, err := waiter.WaitForOutput(ctx, &acmpca.GetCertificateInput{
		CertificateAuthorityArn: aws.String(caArn),
		CertificateArn:          aws.String(certArn),
	}, s.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for certificate %s: %w", certArn, err)
	}

	return &Certificate{
		ARN:      certArn,
		PEM:      aws.ToString(out.Certificate),
		ChainPEM: aws.ToString(out.CertificateChain),
	}, nil
}

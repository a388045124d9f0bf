package pca

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// activate installs a self signed root certificate on a pending authority:
// wait for the CA CSR, issue it against the root template, import the result
// and wait for the authority to report ACTIVE.
func (s *Service) activate(ctx context.Context, authority *Authority) (*Authority, error) {
	caArn := aws.String(authority.ARN)

	csrWaiter := acmpca.NewCertificateAuthorityCSRCreatedWaiter(s.client)
	csrOut, err := csrWaiter.WaitForOutput(ctx, &acmpca.GetCertificateAuthorityCsrInput{
		CertificateAuthorityArn: caArn,
	}, s.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for CA CSR: %w", err)
	}

	issueOut, err := s.client.IssueCertificate(ctx, &acmpca.IssueCertificateInput{
		CertificateAuthorityArn: caArn,
		Csr:                     []byte(aws.ToString(csrOut.Csr)),
		SigningAlgorithm:        authority.SigningAlgorithm,
		TemplateArn:             aws.String(RootCATemplateARN),
		Validity: &types.Validity{
			Type:  types.ValidityPeriodTypeYears,
			Value: aws.Int64(s.cfg.RootValidityYears),
		},
		IdempotencyToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue root CA certificate: %w", err)
	}

	cert, err := s.waitForCertificate(ctx, authority.ARN, aws.ToString(issueOut.CertificateArn))
	if err != nil {
		return nil, err
	}

	_, err = s.client.ImportCertificateAuthorityCertificate(ctx, &acmpca.ImportCertificateAuthorityCertificateInput{
		CertificateAuthorityArn: caArn,
		Certificate:             []byte(cert.PEM),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import root CA certificate: %w", err)
	}

	status, err := backoff.Retry(ctx, func() (types.CertificateAuthorityStatus, error) {
		out, err := s.client.DescribeCertificateAuthority(ctx, &acmpca.DescribeCertificateAuthorityInput{
			CertificateAuthorityArn: caArn,
		})
		if err != nil {
			return "", backoff.Permanent(err)
		}

		status := out.CertificateAuthority.Status
		switch status {
		case types.CertificateAuthorityStatusActive:
			return status, nil
		case types.CertificateAuthorityStatusFailed, types.CertificateAuthorityStatusDeleted:
			return status, backoff.Permanent(fmt.Errorf("certificate authority is %s", status))
		}
		return status, fmt.Errorf("certificate authority is %s", status)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.cfg.ActivationTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for certificate authority to activate: %w", err)
	}

	log.Info().
		Str("arn", authority.ARN).
		Str("status", string(status)).
		Msg("Certificate authority activated")

	activated := *authority
	activated.Status = status
	return &activated, nil
}

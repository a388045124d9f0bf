// Package ssmcerts publishes provisioning results to SSM Parameter Store and
// loads them back.
package ssmcerts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/pki"
)

// Parameter names under the configured prefix.
const (
	AuthorityARNParameter = "authority-arn"
	KeyIDParameter        = "key-id"
	CertificateParameter  = "certificate"
)

// ErrParameterNotFound is returned when a published parameter is missing.
var ErrParameterNotFound = errors.New("parameter not found")

// API is the part of the SSM client used to publish and load parameters.
type API interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Parameters is the set of values published for one provisioning run.
type Parameters struct {
	AuthorityARN   string
	KeyID          string
	CertificatePEM string
}

// Store reads and writes Parameters below a path prefix such as /pcasign/signer1.
type Store struct {
	client API
	prefix string
}

// New creates a parameter store rooted at prefix.
func New(client API, prefix string) *Store {
	return &Store{client: client, prefix: normalizePrefix(prefix)}
}

// Name returns the full parameter name for key.
func (s *Store) Name(key string) string {
	return path.Join(s.prefix, key)
}

// Publish writes every parameter, overwriting earlier values.
func (s *Store) Publish(ctx context.Context, p *Parameters) error {
	values := []struct{ key, value string }{
		{AuthorityARNParameter, p.AuthorityARN},
		{KeyIDParameter, p.KeyID},
		{CertificateParameter, p.CertificatePEM},
	}

	for _, v := range values {
		if err := s.putParameter(ctx, s.Name(v.key), v.value); err != nil {
			return fmt.Errorf("failed to publish %s: %w", v.key, err)
		}
	}

	log.Info().
		Str("prefix", s.prefix).
		Msg("Published parameters to SSM")

	return nil
}

// Load reads the parameters back and checks the certificate parses.
func (s *Store) Load(ctx context.Context) (*Parameters, error) {
	p := &Parameters{}

	var err error
	if p.AuthorityARN, err = s.getParameter(ctx, s.Name(AuthorityARNParameter)); err != nil {
		return nil, fmt.Errorf("failed to load authority ARN from SSM: %w", err)
	}
	if p.KeyID, err = s.getParameter(ctx, s.Name(KeyIDParameter)); err != nil {
		return nil, fmt.Errorf("failed to load key id from SSM: %w", err)
	}
	if p.CertificatePEM, err = s.getParameter(ctx, s.Name(CertificateParameter)); err != nil {
		return nil, fmt.Errorf("failed to load certificate from SSM: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that the certificate is valid PEM
func (p *Parameters) Validate() error {
	if _, err := pki.ParseCertificatePEM([]byte(p.CertificatePEM)); err != nil {
		return fmt.Errorf("invalid certificate PEM: %w", err)
	}
	return nil
}

func (s *Store) putParameter(ctx context.Context, name, value string) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	return err
}

func (s *Store) getParameter(ctx context.Context, name string) (string, error) {
	output, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrParameterNotFound, name)
		}
		return "", err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *output.Parameter.Value, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

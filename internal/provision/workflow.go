// Package provision runs the code signing workflow: get or create a root CA
// and a KMS key, sign a CSR with the key, issue the certificate and write it
// to disk.
package provision

import (
	"context"
	"crypto"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/keys"
	"github.com/wolfeidau/pcasign/internal/pca"
	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/prompt"
	"github.com/wolfeidau/pcasign/internal/ssmcerts"
	"github.com/wolfeidau/pcasign/internal/store"
	"github.com/wolfeidau/pcasign/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultOutputPath is where the certificate is written when no path is given.
const DefaultOutputPath = "myappcodesigningcertificate.pem"

// Issuer issues an end entity certificate from a CSR.
type Issuer interface {
	Issue(ctx context.Context, authority *pca.Authority, csrPEM []byte) (*pca.Certificate, error)
}

// SignerSource returns a crypto.Signer for a provisioned key.
type SignerSource interface {
	Signer(ctx context.Context, key *keys.SigningKey) (crypto.Signer, error)
}

// Publisher stores the outcome of a run somewhere other processes can read it.
type Publisher interface {
	Publish(ctx context.Context, p *ssmcerts.Parameters) error
}

// Workflow wires the provisioning steps together. Authorities, Keys, Issuer
// and Signers are required; Ledger and Publisher are optional.
type Workflow struct {
	Authorities Provisioner[*pca.Authority]
	Keys        Provisioner[*keys.SigningKey]
	Issuer      Issuer
	Signers     SignerSource
	OutputPath  string

	Ledger    store.CertificateStore
	Publisher Publisher
}

// Result describes what a successful run found, created and wrote.
type Result struct {
	Authority        *pca.Authority
	Key              *keys.SigningKey
	Certificate      *pca.Certificate
	Metadata         *store.CertMetadata
	OutputPath       string
	CreatedAuthority bool
	CreatedKey       bool
}

// Run executes the workflow for in. Steps run strictly in order and the first
// failure stops the run with a *StepError.
func (w *Workflow) Run(ctx context.Context, in prompt.Input) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "provision",
		trace.WithAttributes(attribute.String("region", string(in.Region))))
	defer span.End()

	res := &Result{OutputPath: w.OutputPath}
	if res.OutputPath == "" {
		res.OutputPath = DefaultOutputPath
	}

	var csrPEM []byte

	steps := []struct {
		step Step
		run  func(ctx context.Context) error
	}{
		{StepAuthority, func(ctx context.Context) (err error) {
			res.Authority, res.CreatedAuthority, err = GetOrCreate(ctx, w.Authorities, in.RootCommonName, isNotFound(pca.ErrAuthorityNotFound))
			if err != nil {
				return err
			}
			log.Info().
				Str("arn", res.Authority.ARN).
				Bool("created", res.CreatedAuthority).
				Msg("Certificate authority ready")
			return nil
		}},
		{StepKey, func(ctx context.Context) (err error) {
			res.Key, res.CreatedKey, err = GetOrCreate(ctx, w.Keys, in.KeyAlias, isNotFound(keys.ErrKeyNotFound))
			if err != nil {
				return err
			}
			log.Info().
				Str("alias", res.Key.Alias).
				Str("key_id", res.Key.KeyID).
				Bool("created", res.CreatedKey).
				Msg("Signing key ready")
			return nil
		}},
		{StepCSR, func(ctx context.Context) error {
			signer, err := w.Signers.Signer(ctx, res.Key)
			if err != nil {
				return err
			}
			csrPEM, err = pki.GenerateCSR(signer, in.EndEntityCommonName)
			if err != nil {
				return err
			}
			log.Info().
				Str("subject", in.EndEntityCommonName).
				Msg("Certificate signing request generated")
			return nil
		}},
		{StepIssue, func(ctx context.Context) (err error) {
			res.Certificate, err = w.Issuer.Issue(ctx, res.Authority, csrPEM)
			if err != nil {
				return err
			}
			log.Info().
				Str("certificate_arn", res.Certificate.ARN).
				Msg("Certificate issued")
			return nil
		}},
		{StepWrite, func(ctx context.Context) error {
			if err := pki.WriteCertificatePEM(res.OutputPath, []byte(res.Certificate.PEM)); err != nil {
				return err
			}
			log.Info().
				Str("path", res.OutputPath).
				Msg("Certificate written")
			return nil
		}},
		{StepRecord, func(ctx context.Context) error {
			if w.Ledger == nil {
				return nil
			}
			return w.record(ctx, in, res)
		}},
		{StepPublish, func(ctx context.Context) error {
			if w.Publisher == nil {
				return nil
			}
			return w.Publisher.Publish(ctx, &ssmcerts.Parameters{
				AuthorityARN:   res.Authority.ARN,
				KeyID:          res.Key.KeyID,
				CertificatePEM: res.Certificate.PEM,
			})
		}},
	}

	for _, s := range steps {
		if err := runStep(ctx, s.step, s.run); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	w.count(ctx, in, res)

	return res, nil
}

func (w *Workflow) record(ctx context.Context, in prompt.Input, res *Result) error {
	cert, err := pki.ParseCertificatePEM([]byte(res.Certificate.PEM))
	if err != nil {
		return err
	}

	meta := store.NewCertMetadataFromX509(cert, store.Issuance{
		AuthorityARN:   res.Authority.ARN,
		CertificateARN: res.Certificate.ARN,
		KeyID:          res.Key.KeyID,
		KeyAlias:       res.Key.Alias,
		Region:         string(in.Region),
	})
	if err := w.Ledger.Register(ctx, meta); err != nil {
		return err
	}
	res.Metadata = meta

	log.Info().
		Str("serial_number", meta.SerialNumber).
		Str("fingerprint", meta.Fingerprint).
		Msg("Certificate recorded")
	return nil
}

func (w *Workflow) count(ctx context.Context, in prompt.Input, res *Result) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("region", string(in.Region)))

	m.CertificatesIssuedTotal.Add(ctx, 1, attrs)
	if res.CreatedAuthority {
		m.AuthoritiesCreatedTotal.Add(ctx, 1, attrs)
	}
	if res.CreatedKey {
		m.KeysCreatedTotal.Add(ctx, 1, attrs)
	}
}

func runStep(ctx context.Context, step Step, run func(ctx context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, string(step))
	defer span.End()

	started := time.Now()
	err := run(ctx)

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("step", string(step)))
	m.StepDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		m.StepErrorsTotal.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("step", string(step)).Msg("Step failed")
		return &StepError{Step: step, Err: err}
	}

	return nil
}

func isNotFound(sentinel error) func(error) bool {
	return func(err error) bool {
		return errors.Is(err, sentinel)
	}
}

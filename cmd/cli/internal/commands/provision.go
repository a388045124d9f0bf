package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	acmpcatypes "github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/keys"
	"github.com/wolfeidau/pcasign/internal/pca"
	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/prompt"
	"github.com/wolfeidau/pcasign/internal/provision"
	"github.com/wolfeidau/pcasign/internal/region"
	"github.com/wolfeidau/pcasign/internal/ssmcerts"
)

// ProvisionCmd gets or creates a root CA and a KMS signing key, then issues a
// code signing certificate for the end entity. Questions not answered by flags
// or the answers file are asked on stdin.
type ProvisionCmd struct {
	RootCN      string `help:"private CA root common name" name:"root-cn"`
	EndEntityCN string `help:"end entity common name" name:"end-entity-cn"`
	KeyAlias    string `help:"alias of the KMS signing key"`
	Region      string `help:"AWS region name or menu number"`
	Answers     string `help:"YAML file answering the provisioning questions" type:"existingfile"`

	Output         string        `help:"path the certificate PEM is written to" default:"myappcodesigningcertificate.pem" type:"path"`
	KeySpec        string        `help:"KMS key spec for new keys" default:"ECC_NIST_P256" enum:"ECC_NIST_P256,ECC_NIST_P384,RSA_2048,RSA_3072,RSA_4096"`
	CAKeyAlgorithm string        `help:"key algorithm for new root CAs" name:"ca-key-algorithm" default:"EC_prime256v1" enum:"EC_prime256v1,EC_secp384r1,RSA_2048,RSA_3072,RSA_4096"`
	ValidityDays   int64         `help:"lifetime of the code signing certificate in days" default:"365"`
	WaitTimeout    time.Duration `help:"maximum time to wait for each issuance" default:"5m"`
	LedgerTable    string        `help:"DynamoDB table recording issued certificates" env:"PCASIGN_LEDGER_TABLE"`
	SSMPrefix      string        `help:"SSM parameter path to publish the CA ARN, key id and certificate under" name:"ssm-prefix"`

	AWSFlags `embed:""`

	stdin  io.Reader
	stdout io.Writer
}

// Run executes the provision command
func (cmd *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	preset, err := cmd.preset()
	if err != nil {
		return &provision.StepError{Step: provision.StepInput, Err: err}
	}

	in, err := prompt.New(cmd.input(), cmd.output()).Collect(preset)
	if err != nil {
		return &provision.StepError{Step: provision.StepInput, Err: err}
	}

	log.Info().
		Str("root_cn", in.RootCommonName).
		Str("end_entity_cn", in.EndEntityCommonName).
		Str("key_alias", in.KeyAlias).
		Str("region", string(in.Region)).
		Msg("Starting provisioning")

	workflow, err := cmd.workflow(ctx, in.Region)
	if err != nil {
		return err
	}

	res, err := workflow.Run(ctx, in)
	if err != nil {
		return err
	}

	cmd.printSummary(in, res)
	return nil
}

// preset merges the answers file with flags, flags taking precedence.
func (cmd *ProvisionCmd) preset() (prompt.Input, error) {
	var in prompt.Input
	if cmd.Answers != "" {
		var err error
		if in, err = loadAnswers(cmd.Answers); err != nil {
			return prompt.Input{}, err
		}
	}

	if cmd.RootCN != "" {
		in.RootCommonName = cmd.RootCN
	}
	if cmd.EndEntityCN != "" {
		in.EndEntityCommonName = cmd.EndEntityCN
	}
	if cmd.KeyAlias != "" {
		in.KeyAlias = cmd.KeyAlias
	}
	if cmd.Region != "" {
		r, err := region.Parse(cmd.Region)
		if err != nil {
			return prompt.Input{}, err
		}
		in.Region = r
	}

	return in, nil
}

func (cmd *ProvisionCmd) workflow(ctx context.Context, r region.Region) (*provision.Workflow, error) {
	svc, err := cmd.awsServices(ctx, r)
	if err != nil {
		return nil, err
	}

	tags := map[string]string{"created-by": "pcasign"}

	authorities := pca.New(svc.pca, pca.Config{
		Region:       r,
		KeyAlgorithm: acmpcatypes.KeyAlgorithm(cmd.CAKeyAlgorithm),
		ValidityDays: cmd.ValidityDays,
		Tags:         tags,
		WaitTimeout:  cmd.WaitTimeout,
	})
	signingKeys := keys.New(svc.kms, keys.Config{
		Region:  r,
		KeySpec: kmstypes.KeySpec(cmd.KeySpec),
		Tags:    tags,
	})

	workflow := &provision.Workflow{
		Authorities: authorities,
		Keys:        signingKeys,
		Issuer:      authorities,
		Signers:     signingKeys,
		OutputPath:  cmd.Output,
	}

	if cmd.LedgerTable != "" {
		ledger, err := svc.ledger(ctx, cmd.LedgerTable, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open certificate ledger: %w", err)
		}
		workflow.Ledger = ledger
	}

	if cmd.SSMPrefix != "" {
		workflow.Publisher = ssmcerts.New(svc.ssm, cmd.SSMPrefix)
	}

	return workflow, nil
}

func (cmd *ProvisionCmd) input() io.Reader {
	if cmd.stdin == nil {
		return os.Stdin
	}
	return cmd.stdin
}

func (cmd *ProvisionCmd) output() io.Writer {
	return writerOrStdout(cmd.stdout)
}

func (cmd *ProvisionCmd) printSummary(in prompt.Input, res *provision.Result) {
	w := cmd.output()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "Code Signing Certificate Issued")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "\nRegion:      %s\n", in.Region)
	fmt.Fprintf(w, "Root CA:     %s (%s)\n", res.Authority.ARN, createdOrExisting(res.CreatedAuthority))
	fmt.Fprintf(w, "KMS key:     %s %s (%s)\n", res.Key.Alias, res.Key.KeyID, createdOrExisting(res.CreatedKey))
	fmt.Fprintf(w, "Certificate: %s\n", res.Certificate.ARN)
	fmt.Fprintf(w, "Written to:  %s\n", res.OutputPath)

	if cert, err := pki.ParseCertificatePEM([]byte(res.Certificate.PEM)); err == nil {
		v := pki.Validate(cert, time.Now())
		fmt.Fprintf(w, "Subject:     %s\n", v.Subject)
		fmt.Fprintf(w, "Expires:     %s (%d days)\n", v.NotAfter.Format(time.DateOnly), v.DaysRemaining)
		fmt.Fprintf(w, "Fingerprint: %s\n", v.Fingerprint)
	}

	if cmd.DryRun {
		fmt.Fprintln(w, "\nDry run: no AWS resources were created.")
	}
}

func createdOrExisting(created bool) string {
	if created {
		return "created"
	}
	return "existing"
}

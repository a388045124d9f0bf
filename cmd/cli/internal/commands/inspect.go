package commands

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/region"
	"github.com/wolfeidau/pcasign/internal/ssmcerts"
)

// InspectCmd prints details of a code signing certificate, read either from a
// PEM file or from the parameters published under an SSM prefix.
type InspectCmd struct {
	Path      string `arg:"" optional:"" help:"certificate PEM file" type:"existingfile"`
	SSMPrefix string `help:"SSM parameter path the certificate was published under" name:"ssm-prefix"`
	Region    string `help:"AWS region name or menu number" env:"AWS_REGION" default:"us-east-1"`

	AWSFlags `embed:""`

	stdout io.Writer
}

func (i *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	cert, source, err := i.load(ctx)
	if err != nil {
		return err
	}

	i.printCert(source, pki.Validate(cert, time.Now()))

	return pki.RequireCodeSigning(cert)
}

func (i *InspectCmd) load(ctx context.Context) (*x509.Certificate, string, error) {
	switch {
	case i.Path != "" && i.SSMPrefix != "":
		return nil, "", errors.New("give either a certificate path or --ssm-prefix, not both")
	case i.Path != "":
		cert, err := pki.LoadCertificate(i.Path)
		return cert, i.Path, err
	case i.SSMPrefix != "":
		r, err := region.Parse(i.Region)
		if err != nil {
			return nil, "", err
		}
		svc, err := i.awsServices(ctx, r)
		if err != nil {
			return nil, "", err
		}
		params, err := ssmcerts.New(svc.ssm, i.SSMPrefix).Load(ctx)
		if err != nil {
			return nil, "", err
		}
		cert, err := pki.ParseCertificatePEM([]byte(params.CertificatePEM))
		if err != nil {
			return nil, "", err
		}
		return cert, fmt.Sprintf("ssm:%s (authority %s, key %s)", i.SSMPrefix, params.AuthorityARN, params.KeyID), nil
	default:
		return nil, "", errors.New("a certificate path or --ssm-prefix is required")
	}
}

func (i *InspectCmd) printCert(source string, v *pki.CertValidation) {
	w := writerOrStdout(i.stdout)

	status := "valid"
	if v.Expired {
		status = "EXPIRED"
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Certificate: %s\n", source)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Subject:      %s\n", v.Subject)
	fmt.Fprintf(w, "Issuer:       %s\n", v.Issuer)
	fmt.Fprintf(w, "Serial:       %s\n", v.SerialNumber)
	fmt.Fprintf(w, "Fingerprint:  %s\n", v.Fingerprint)
	fmt.Fprintf(w, "Not before:   %s\n", v.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(w, "Not after:    %s\n", v.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(w, "Status:       %s (%d days remaining)\n", status, v.DaysRemaining)
	fmt.Fprintf(w, "Code signing: %t\n", v.CodeSigning)
}

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wolfeidau/pcasign/internal/region"
	"github.com/wolfeidau/pcasign/internal/store"
)

// ListCmd prints the certificates recorded in the issuance ledger.
type ListCmd struct {
	Region      string `help:"AWS region name or menu number" env:"AWS_REGION" default:"us-east-1"`
	LedgerTable string `help:"DynamoDB table recording issued certificates" env:"PCASIGN_LEDGER_TABLE" required:""`
	Authority   string `help:"only list certificates issued by this CA ARN" default:""`
	Limit       int    `help:"maximum number of certificates to list" default:"50"`

	AWSFlags `embed:""`

	stdout io.Writer
}

func (l *ListCmd) Run(ctx context.Context, globals *Globals) error {
	r, err := region.Parse(l.Region)
	if err != nil {
		return err
	}

	svc, err := l.awsServices(ctx, r)
	if err != nil {
		return err
	}

	ledger, err := svc.ledger(ctx, l.LedgerTable, false)
	if err != nil {
		return err
	}

	certs, err := ledger.List(ctx, store.ListCertificatesOptions{
		AuthorityARN: l.Authority,
		Limit:        l.Limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	l.printCerts(certs, time.Now())
	return nil
}

func (l *ListCmd) printCerts(certs []*store.CertMetadata, now time.Time) {
	w := writerOrStdout(l.stdout)

	authorityFilter := l.Authority
	if authorityFilter == "" {
		authorityFilter = "all"
	}

	fmt.Fprintf(w, "Certificates (table: %s, authority: %s):\n", l.LedgerTable, authorityFilter)

	if len(certs) == 0 {
		fmt.Fprintln(w, "No certificates found.")
		return
	}

	fmt.Fprintf(w, "%-40s %-24s %-24s %-12s %-10s\n",
		"Serial Number", "Subject", "Key Alias", "Expires", "Status")
	fmt.Fprintln(w, strings.Repeat("─", 114))

	for _, cert := range certs {
		status := "valid"
		if now.After(cert.ExpiresAt) {
			status = "expired"
		}

		fmt.Fprintf(w, "%-40s %-24s %-24s %-12s %-10s\n",
			truncate(cert.SerialNumber, 40),
			truncate(cert.SubjectCN, 24),
			truncate(cert.KeyAlias, 24),
			cert.ExpiresAt.Format(time.DateOnly),
			status)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

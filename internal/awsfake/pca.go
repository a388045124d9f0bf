package awsfake

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/google/uuid"
)

// Template ARNs understood by the fake.
const (
	RootCACertificateTemplate  = "arn:aws:acm-pca:::template/RootCACertificate/V1"
	CodeSigningCertificateTmpl = "arn:aws:acm-pca:::template/CodeSigningCertificate/V1"
)

type authority struct {
	ca      types.CertificateAuthority
	key     *ecdsa.PrivateKey
	cert    *x509.Certificate
	certPEM string
}

type issued struct {
	caArn    string
	certPEM  string
	chainPEM string
}

// PCA is an in-memory AWS Private CA. Authorities are backed by local ECDSA
// P-256 keys regardless of the requested key algorithm.
type PCA struct {
	Region string

	// IssueErr, when set, is returned by IssueCertificate for end entity certificates.
	IssueErr error
	// CertificatePEM, when set, replaces the body of every end entity certificate returned by GetCertificate.
	CertificatePEM string

	mu          sync.Mutex
	authorities map[string]*authority
	order       []string
	issued      map[string]*issued

	CreateCalls int
	IssueCalls  int
}

// NewPCA creates an empty fake Private CA for region.
func NewPCA(region string) *PCA {
	return &PCA{
		Region:      region,
		authorities: make(map[string]*authority),
		issued:      make(map[string]*issued),
	}
}

func (f *PCA) ListCertificateAuthorities(ctx context.Context, params *acmpca.ListCertificateAuthoritiesInput, optFns ...func(*acmpca.Options)) (*acmpca.ListCertificateAuthoritiesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &acmpca.ListCertificateAuthoritiesOutput{}
	for _, arn := range f.order {
		out.CertificateAuthorities = append(out.CertificateAuthorities, f.authorities[arn].ca)
	}
	return out, nil
}

func (f *PCA) CreateCertificateAuthority(ctx context.Context, params *acmpca.CreateCertificateAuthorityInput, optFns ...func(*acmpca.Options)) (*acmpca.CreateCertificateAuthorityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls++

	if params.CertificateAuthorityConfiguration == nil || params.CertificateAuthorityConfiguration.Subject == nil {
		return nil, &types.InvalidArgsException{Message: aws.String("certificate authority configuration is required")}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	arn := fmt.Sprintf("arn:aws:acm-pca:%s:%s:certificate-authority/%s", f.Region, accountID, uuid.NewString())
	now := time.Now()
	f.authorities[arn] = &authority{
		ca: types.CertificateAuthority{
			Arn:                               aws.String(arn),
			OwnerAccount:                      aws.String(accountID),
			CreatedAt:                         &now,
			LastStateChangeAt:                 &now,
			Type:                              params.CertificateAuthorityType,
			Status:                            types.CertificateAuthorityStatusPendingCertificate,
			CertificateAuthorityConfiguration: params.CertificateAuthorityConfiguration,
		},
		key: key,
	}
	f.order = append(f.order, arn)

	return &acmpca.CreateCertificateAuthorityOutput{CertificateAuthorityArn: aws.String(arn)}, nil
}

func (f *PCA) DescribeCertificateAuthority(ctx context.Context, params *acmpca.DescribeCertificateAuthorityInput, optFns ...func(*acmpca.Options)) (*acmpca.DescribeCertificateAuthorityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.get(aws.ToString(params.CertificateAuthorityArn))
	if err != nil {
		return nil, err
	}

	ca := a.ca
	return &acmpca.DescribeCertificateAuthorityOutput{CertificateAuthority: &ca}, nil
}

func (f *PCA) GetCertificateAuthorityCsr(ctx context.Context, params *acmpca.GetCertificateAuthorityCsrInput, optFns ...func(*acmpca.Options)) (*acmpca.GetCertificateAuthorityCsrOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.get(aws.ToString(params.CertificateAuthorityArn))
	if err != nil {
		return nil, err
	}

	template := &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: aws.ToString(a.ca.CertificateAuthorityConfiguration.Subject.CommonName)},
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, a.key)
	if err != nil {
		return nil, err
	}

	csr := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
	return &acmpca.GetCertificateAuthorityCsrOutput{Csr: aws.String(string(csr))}, nil
}

func (f *PCA) ImportCertificateAuthorityCertificate(ctx context.Context, params *acmpca.ImportCertificateAuthorityCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.ImportCertificateAuthorityCertificateOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.get(aws.ToString(params.CertificateAuthorityArn))
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(params.Certificate)
	if block == nil {
		return nil, &types.MalformedCertificateException{Message: aws.String("certificate is not PEM")}
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, &types.MalformedCertificateException{Message: aws.String(err.Error())}
	}
	if pub, ok := cert.PublicKey.(*ecdsa.PublicKey); !ok || !pub.Equal(&a.key.PublicKey) {
		return nil, &types.CertificateMismatchException{Message: aws.String("certificate does not match the CA key")}
	}

	now := time.Now()
	a.cert = cert
	a.certPEM = string(params.Certificate)
	a.ca.Status = types.CertificateAuthorityStatusActive
	a.ca.NotBefore = &cert.NotBefore
	a.ca.NotAfter = &cert.NotAfter
	a.ca.Serial = aws.String(cert.SerialNumber.Text(16))
	a.ca.LastStateChangeAt = &now

	return &acmpca.ImportCertificateAuthorityCertificateOutput{}, nil
}

func (f *PCA) IssueCertificate(ctx context.Context, params *acmpca.IssueCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.IssueCertificateOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.IssueCalls++

	caArn := aws.ToString(params.CertificateAuthorityArn)
	a, err := f.get(caArn)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(params.Csr)
	if block == nil {
		return nil, &types.MalformedCSRException{Message: aws.String("CSR is not PEM")}
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, &types.MalformedCSRException{Message: aws.String(err.Error())}
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, &types.MalformedCSRException{Message: aws.String(err.Error())}
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      csr.Subject,
		NotBefore:    now,
		NotAfter:     now.Add(validity(params.Validity)),
	}

	var record *issued
	switch aws.ToString(params.TemplateArn) {
	case RootCACertificateTemplate:
		if a.ca.Status != types.CertificateAuthorityStatusPendingCertificate {
			return nil, &types.InvalidStateException{Message: aws.String("root certificate already installed")}
		}
		template.IsCA = true
		template.BasicConstraintsValid = true
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature

		der, err := x509.CreateCertificate(rand.Reader, template, template, csr.PublicKey, a.key)
		if err != nil {
			return nil, err
		}
		record = &issued{caArn: caArn, certPEM: encodeCert(der)}

	case CodeSigningCertificateTmpl, "":
		if f.IssueErr != nil {
			return nil, f.IssueErr
		}
		if a.ca.Status != types.CertificateAuthorityStatusActive {
			return nil, &types.InvalidStateException{Message: aws.String(fmt.Sprintf("certificate authority is %s", a.ca.Status))}
		}
		template.KeyUsage = x509.KeyUsageDigitalSignature
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}

		der, err := x509.CreateCertificate(rand.Reader, template, a.cert, csr.PublicKey, a.key)
		if err != nil {
			return nil, err
		}
		certPEM := encodeCert(der)
		if f.CertificatePEM != "" {
			certPEM = f.CertificatePEM
		}
		record = &issued{caArn: caArn, certPEM: certPEM, chainPEM: a.certPEM}

	default:
		return nil, &types.InvalidArgsException{Message: aws.String("unsupported template " + aws.ToString(params.TemplateArn))}
	}

	certArn := fmt.Sprintf("%s/certificate/%s", caArn, serial.Text(16))
	f.issued[certArn] = record

	return &acmpca.IssueCertificateOutput{CertificateArn: aws.String(certArn)}, nil
}

func (f *PCA) GetCertificate(ctx context.Context, params *acmpca.GetCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.GetCertificateOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.issued[aws.ToString(params.CertificateArn)]
	if !ok || record.caArn != aws.ToString(params.CertificateAuthorityArn) {
		return nil, &types.ResourceNotFoundException{Message: aws.String("certificate not found")}
	}

	out := &acmpca.GetCertificateOutput{Certificate: aws.String(record.certPEM)}
	if record.chainPEM != "" {
		out.CertificateChain = aws.String(record.chainPEM)
	}
	return out, nil
}

// Authorities returns the number of certificate authorities created so far.
func (f *PCA) Authorities() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.authorities)
}

// get looks up an authority by ARN. Callers hold mu.
func (f *PCA) get(arn string) (*authority, error) {
	a, ok := f.authorities[arn]
	if !ok || a.ca.Status == types.CertificateAuthorityStatusDeleted {
		return nil, &types.ResourceNotFoundException{Message: aws.String(fmt.Sprintf("certificate authority %s not found", arn))}
	}
	return a, nil
}

func validity(v *types.Validity) time.Duration {
	if v == nil || v.Value == nil {
		return 365 * 24 * time.Hour
	}
	n := time.Duration(*v.Value)
	switch v.Type {
	case types.ValidityPeriodTypeYears:
		return n * 365 * 24 * time.Hour
	case types.ValidityPeriodTypeMonths:
		return n * 30 * 24 * time.Hour
	default:
		return n * 24 * time.Hour
	}
}

func encodeCert(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

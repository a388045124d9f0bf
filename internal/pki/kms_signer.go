package pki

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSAPI is the part of the KMS client needed to sign with an asymmetric key.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner implements crypto.Signer using an AWS KMS asymmetric key.
// The private key never leaves KMS - only digests are sent for signing.
type KMSSigner struct {
	kmsClient KMSAPI
	kmsKeyID  string
	publicKey crypto.PublicKey
	ctx       context.Context
}

var _ crypto.Signer = (*KMSSigner)(nil)

// NewKMSSigner creates a crypto.Signer backed by AWS KMS.
// The kmsKeyID can be a key ID, key ARN, alias name, or alias ARN.
// The context is used for every Sign call since crypto.Signer has no context parameter.
func NewKMSSigner(ctx context.Context, kmsClient KMSAPI, kmsKeyID string) (*KMSSigner, error) {
	pubKeyOutput, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(kmsKeyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key from KMS: %w", err)
	}

	if pubKeyOutput.KeyUsage != "" && pubKeyOutput.KeyUsage != types.KeyUsageTypeSignVerify {
		return nil, fmt.Errorf("KMS key %s has usage %s, expected %s", kmsKeyID, pubKeyOutput.KeyUsage, types.KeyUsageTypeSignVerify)
	}

	// KMS returns a DER-encoded SubjectPublicKeyInfo
	publicKey, err := x509.ParsePKIXPublicKey(pubKeyOutput.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse KMS public key: %w", err)
	}

	switch publicKey.(type) {
	case *ecdsa.PublicKey, *rsa.PublicKey:
	default:
		return nil, fmt.Errorf("unsupported KMS public key type %T", publicKey)
	}

	return &KMSSigner{
		kmsClient: kmsClient,
		kmsKeyID:  kmsKeyID,
		publicKey: publicKey,
		ctx:       ctx,
	}, nil
}

// Public returns the public key
func (k *KMSSigner) Public() crypto.PublicKey {
	return k.publicKey
}

// KeyID returns the KMS key identifier used for signing.
func (k *KMSSigner) KeyID() string {
	return k.kmsKeyID
}

// Sign signs the digest using AWS KMS. The returned signature is DER for
// ECDSA keys and raw PKCS #1 / PSS bytes for RSA keys, as crypto.Signer requires.
func (k *KMSSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	algorithm, err := SigningAlgorithm(k.publicKey, opts)
	if err != nil {
		return nil, err
	}

	signOutput, err := k.kmsClient.Sign(k.ctx, &kms.SignInput{
		KeyId:            aws.String(k.kmsKeyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS sign operation failed: %w", err)
	}

	return signOutput.Signature, nil
}

// SigningAlgorithm picks the KMS signing algorithm for a public key and the
// hash chosen by the caller.
func SigningAlgorithm(pub crypto.PublicKey, opts crypto.SignerOpts) (types.SigningAlgorithmSpec, error) {
	hash := opts.HashFunc()

	switch pub.(type) {
	case *ecdsa.PublicKey:
		switch hash {
		case crypto.SHA256:
			return types.SigningAlgorithmSpecEcdsaSha256, nil
		case crypto.SHA384:
			return types.SigningAlgorithmSpecEcdsaSha384, nil
		case crypto.SHA512:
			return types.SigningAlgorithmSpecEcdsaSha512, nil
		}
	case *rsa.PublicKey:
		_, pss := opts.(*rsa.PSSOptions)
		switch {
		case hash == crypto.SHA256 && pss:
			return types.SigningAlgorithmSpecRsassaPssSha256, nil
		case hash == crypto.SHA384 && pss:
			return types.SigningAlgorithmSpecRsassaPssSha384, nil
		case hash == crypto.SHA512 && pss:
			return types.SigningAlgorithmSpecRsassaPssSha512, nil
		case hash == crypto.SHA256:
			return types.SigningAlgorithmSpecRsassaPkcs1V15Sha256, nil
		case hash == crypto.SHA384:
			return types.SigningAlgorithmSpecRsassaPkcs1V15Sha384, nil
		case hash == crypto.SHA512:
			return types.SigningAlgorithmSpecRsassaPkcs1V15Sha512, nil
		}
	default:
		return "", fmt.Errorf("unsupported public key type %T", pub)
	}

	return "", fmt.Errorf("KMS signer does not support hash %v for %T", hash, pub)
}

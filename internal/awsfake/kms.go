package awsfake

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

const accountID = "111122223333"

type kmsKey struct {
	metadata types.KeyMetadata
	signer   crypto.Signer
}

// KMS is an in-memory implementation of the KMS operations used for
// asymmetric signing keys.
type KMS struct {
	Region string

	mu      sync.Mutex
	keys    map[string]*kmsKey // indexed by key ID
	aliases map[string]string  // alias name -> key ID

	CreateKeyCalls int
	SignCalls      int
}

// NewKMS creates an empty fake KMS for region.
func NewKMS(region string) *KMS {
	return &KMS{
		Region:  region,
		keys:    make(map[string]*kmsKey),
		aliases: make(map[string]string),
	}
}

func (f *KMS) DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := f.resolve(aws.ToString(params.KeyId))
	if err != nil {
		return nil, err
	}

	metadata := key.metadata
	return &kms.DescribeKeyOutput{KeyMetadata: &metadata}, nil
}

func (f *KMS) CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateKeyCalls++

	signer, algorithms, err := generateKey(params.KeySpec)
	if err != nil {
		return nil, err
	}

	keyID := uuid.NewString()
	now := time.Now()
	key := &kmsKey{
		metadata: types.KeyMetadata{
			KeyId:             aws.String(keyID),
			Arn:               aws.String(fmt.Sprintf("arn:aws:kms:%s:%s:key/%s", f.Region, accountID, keyID)),
			AWSAccountId:      aws.String(accountID),
			CreationDate:      &now,
			Description:       params.Description,
			Enabled:           true,
			KeyState:          types.KeyStateEnabled,
			KeyUsage:          params.KeyUsage,
			KeySpec:           params.KeySpec,
			SigningAlgorithms: algorithms,
		},
		signer: signer,
	}
	f.keys[keyID] = key

	metadata := key.metadata
	return &kms.CreateKeyOutput{KeyMetadata: &metadata}, nil
}

func (f *KMS) CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.AliasName)
	if !strings.HasPrefix(name, "alias/") {
		return nil, &types.InvalidAliasNameException{Message: aws.String("alias must begin with alias/")}
	}
	if _, exists := f.aliases[name]; exists {
		return nil, &types.AlreadyExistsException{Message: aws.String(fmt.Sprintf("alias %s already exists", name))}
	}

	key, err := f.resolve(aws.ToString(params.TargetKeyId))
	if err != nil {
		return nil, err
	}
	f.aliases[name] = aws.ToString(key.metadata.KeyId)

	return &kms.CreateAliasOutput{}, nil
}

func (f *KMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := f.resolve(aws.ToString(params.KeyId))
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKIXPublicKey(key.signer.Public())
	if err != nil {
		return nil, err
	}

	return &kms.GetPublicKeyOutput{
		KeyId:             key.metadata.Arn,
		PublicKey:         der,
		KeySpec:           key.metadata.KeySpec,
		KeyUsage:          key.metadata.KeyUsage,
		SigningAlgorithms: key.metadata.SigningAlgorithms,
	}, nil
}

func (f *KMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SignCalls++

	key, err := f.resolve(aws.ToString(params.KeyId))
	if err != nil {
		return nil, err
	}
	if key.metadata.KeyUsage != types.KeyUsageTypeSignVerify {
		return nil, &types.InvalidKeyUsageException{Message: aws.String("key is not a signing key")}
	}

	digest := params.Message
	hash, pss, err := algorithmHash(params.SigningAlgorithm)
	if err != nil {
		return nil, err
	}
	if params.MessageType != types.MessageTypeDigest {
		h := hash.New()
		h.Write(params.Message)
		digest = h.Sum(nil)
	}
	if len(digest) != hash.Size() {
		return nil, validationError("digest length does not match signing algorithm")
	}

	var opts crypto.SignerOpts = hash
	if pss {
		opts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
	}

	signature, err := key.signer.Sign(rand.Reader, digest, opts)
	if err != nil {
		return nil, err
	}

	return &kms.SignOutput{
		KeyId:            key.metadata.Arn,
		Signature:        signature,
		SigningAlgorithm: params.SigningAlgorithm,
	}, nil
}

// resolve finds a key by ID, ARN, alias name or alias ARN. Callers hold mu.
func (f *KMS) resolve(id string) (*kmsKey, error) {
	if i := strings.Index(id, ":alias/"); i >= 0 {
		id = id[i+1:]
	}
	if strings.HasPrefix(id, "alias/") {
		keyID, ok := f.aliases[id]
		if !ok {
			return nil, &types.NotFoundException{Message: aws.String(fmt.Sprintf("Alias %s is not found.", id))}
		}
		id = keyID
	}
	if i := strings.LastIndex(id, ":key/"); i >= 0 {
		id = id[i+len(":key/"):]
	}

	key, ok := f.keys[id]
	if !ok {
		return nil, &types.NotFoundException{Message: aws.String(fmt.Sprintf("Key %s does not exist", id))}
	}
	return key, nil
}

func generateKey(spec types.KeySpec) (crypto.Signer, []types.SigningAlgorithmSpec, error) {
	ecdsaAlgorithms := []types.SigningAlgorithmSpec{
		types.SigningAlgorithmSpecEcdsaSha256,
		types.SigningAlgorithmSpecEcdsaSha384,
		types.SigningAlgorithmSpecEcdsaSha512,
	}
	rsaAlgorithms := []types.SigningAlgorithmSpec{
		types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
		types.SigningAlgorithmSpecRsassaPkcs1V15Sha384,
		types.SigningAlgorithmSpecRsassaPkcs1V15Sha512,
		types.SigningAlgorithmSpecRsassaPssSha256,
		types.SigningAlgorithmSpecRsassaPssSha384,
		types.SigningAlgorithmSpecRsassaPssSha512,
	}

	switch spec {
	case types.KeySpecEccNistP256, "":
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		return key, ecdsaAlgorithms, err
	case types.KeySpecEccNistP384:
		key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		return key, ecdsaAlgorithms, err
	case types.KeySpecRsa2048:
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		return key, rsaAlgorithms, err
	case types.KeySpecRsa3072:
		key, err := rsa.GenerateKey(rand.Reader, 3072)
		return key, rsaAlgorithms, err
	case types.KeySpecRsa4096:
		key, err := rsa.GenerateKey(rand.Reader, 4096)
		return key, rsaAlgorithms, err
	default:
		return nil, nil, &types.UnsupportedOperationException{Message: aws.String(fmt.Sprintf("key spec %s is not supported", spec))}
	}
}

func algorithmHash(alg types.SigningAlgorithmSpec) (crypto.Hash, bool, error) {
	switch alg {
	case types.SigningAlgorithmSpecEcdsaSha256, types.SigningAlgorithmSpecRsassaPkcs1V15Sha256:
		return crypto.SHA256, false, nil
	case types.SigningAlgorithmSpecEcdsaSha384, types.SigningAlgorithmSpecRsassaPkcs1V15Sha384:
		return crypto.SHA384, false, nil
	case types.SigningAlgorithmSpecEcdsaSha512, types.SigningAlgorithmSpecRsassaPkcs1V15Sha512:
		return crypto.SHA512, false, nil
	case types.SigningAlgorithmSpecRsassaPssSha256:
		return crypto.SHA256, true, nil
	case types.SigningAlgorithmSpecRsassaPssSha384:
		return crypto.SHA384, true, nil
	case types.SigningAlgorithmSpecRsassaPssSha512:
		return crypto.SHA512, true, nil
	}
	return 0, false, validationError(fmt.Sprintf("signing algorithm %s is not supported", alg))
}

func validationError(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg, Fault: smithy.FaultClient}
}

package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/pki"
	"github.com/wolfeidau/pcasign/internal/region"
)

const aliasPrefix = "alias/"

var (
	// ErrKeyNotFound is returned when no key is registered under an alias.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrUnusableKey is returned when an alias points at a key that cannot sign.
	ErrUnusableKey = errors.New("key cannot be used for signing")
)

// API is the part of the KMS client used to provision and use signing keys.
type API interface {
	pki.KMSAPI
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
}

// SigningKey is an asymmetric KMS key reachable through an alias.
type SigningKey struct {
	KeyID   string
	ARN     string
	Alias   string
	Region  region.Region
	KeySpec types.KeySpec
}

// Config controls how new keys are created.
type Config struct {
	Region      region.Region
	KeySpec     types.KeySpec
	Description string
	Tags        map[string]string
}

// Service finds and creates asymmetric signing keys in one region.
type Service struct {
	client API
	cfg    Config
}

// New creates a key service. An empty KeySpec defaults to ECC_NIST_P256.
func New(client API, cfg Config) *Service {
	if cfg.KeySpec == "" {
		cfg.KeySpec = types.KeySpecEccNistP256
	}
	if cfg.Description == "" {
		cfg.Description = "code signing key"
	}
	return &Service{client: client, cfg: cfg}
}

// SupportedKeySpecs lists the key specs that can sign a certificate request.
var SupportedKeySpecs = []types.KeySpec{
	types.KeySpecEccNistP256,
	types.KeySpecEccNistP384,
	types.KeySpecRsa2048,
	types.KeySpecRsa3072,
	types.KeySpecRsa4096,
}

// AliasName returns alias with the alias/ prefix KMS expects.
func AliasName(alias string) string {
	if strings.HasPrefix(alias, aliasPrefix) {
		return alias
	}
	return aliasPrefix + alias
}

// Find looks up the key behind alias.
func (s *Service) Find(ctx context.Context, alias string) (*SigningKey, error) {
	out, err := s.client.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: aws.String(AliasName(alias)),
	})
	if err != nil {
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, AliasName(alias))
		}
		return nil, fmt.Errorf("failed to describe key %s: %w", AliasName(alias), err)
	}

	meta := out.KeyMetadata
	if meta == nil {
		return nil, fmt.Errorf("failed to describe key %s: empty metadata", AliasName(alias))
	}

	if meta.KeyUsage != types.KeyUsageTypeSignVerify {
		return nil, fmt.Errorf("%w: %s has usage %s", ErrUnusableKey, AliasName(alias), meta.KeyUsage)
	}
	if !meta.Enabled || meta.KeyState == types.KeyStatePendingDeletion {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnusableKey, AliasName(alias), meta.KeyState)
	}

	log.Debug().
		Str("alias", AliasName(alias)).
		Str("key_id", aws.ToString(meta.KeyId)).
		Msg("Found existing KMS key")

	return s.signingKey(alias, meta), nil
}

// Create makes a new SIGN_VERIFY key and points alias at it.
func (s *Service) Create(ctx context.Context, alias string) (*SigningKey, error) {
	out, err := s.client.CreateKey(ctx, &kms.CreateKeyInput{
		KeySpec:     s.cfg.KeySpec,
		KeyUsage:    types.KeyUsageTypeSignVerify,
		Description: aws.String(s.cfg.Description),
		Tags:        kmsTags(s.cfg.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}

	meta := out.KeyMetadata
	_, err = s.client.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(AliasName(alias)),
		TargetKeyId: meta.KeyId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create alias %s for key %s: %w", AliasName(alias), aws.ToString(meta.KeyId), err)
	}

	log.Info().
		Str("alias", AliasName(alias)).
		Str("key_id", aws.ToString(meta.KeyId)).
		Str("key_spec", string(meta.KeySpec)).
		Msg("Created KMS signing key")

	return s.signingKey(alias, meta), nil
}

// Signer returns a crypto.Signer that signs with key inside KMS.
func (s *Service) Signer(ctx context.Context, key *SigningKey) (crypto.Signer, error) {
	return pki.NewKMSSigner(ctx, s.client, key.KeyID)
}

func (s *Service) signingKey(alias string, meta *types.KeyMetadata) *SigningKey {
	return &SigningKey{
		KeyID:   aws.ToString(meta.KeyId),
		ARN:     aws.ToString(meta.Arn),
		Alias:   AliasName(alias),
		Region:  s.cfg.Region,
		KeySpec: meta.KeySpec,
	}
}

func kmsTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}

	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{TagKey: aws.String(k), TagValue: aws.String(v)})
	}
	return out
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/internal/clientauth"
	"github.com/wolfeidau/pcasign/internal/keys"
	"github.com/wolfeidau/pcasign/internal/provision"
	"github.com/wolfeidau/pcasign/internal/region"
)

// TokenCmd signs an OAuth2 client assertion with a KMS key and optionally
// exchanges it for an access token.
type TokenCmd struct {
	KeyAlias string        `help:"alias of the KMS signing key" required:""`
	ClientID string        `help:"OAuth2 client id, used as iss and sub" required:""`
	TokenURL string        `help:"OAuth2 token endpoint" required:""`
	Audience string        `help:"assertion audience, defaults to the token URL" default:""`
	TTL      time.Duration `help:"assertion lifetime" default:"4m"`
	Scopes   []string      `help:"scopes to request on exchange"`
	Kid      string        `help:"kid header value" default:""`
	Exchange bool          `help:"exchange the assertion for an access token" default:"false"`
	Region   string        `help:"AWS region name or menu number" env:"AWS_REGION" default:"us-east-1"`

	AWSFlags `embed:""`

	stdout io.Writer
}

func (t *TokenCmd) Run(ctx context.Context, globals *Globals) error {
	r, err := region.Parse(t.Region)
	if err != nil {
		return err
	}

	svc, err := t.awsServices(ctx, r)
	if err != nil {
		return err
	}

	signingKeys := keys.New(svc.kms, keys.Config{Region: r})

	var key *keys.SigningKey
	if svc.dryRun {
		// the in-memory KMS starts empty
		key, _, err = provision.GetOrCreate[*keys.SigningKey](ctx, signingKeys, t.KeyAlias, func(err error) bool {
			return errors.Is(err, keys.ErrKeyNotFound)
		})
	} else {
		key, err = signingKeys.Find(ctx, t.KeyAlias)
	}
	if err != nil {
		return fmt.Errorf("failed to find signing key %s: %w", t.KeyAlias, err)
	}

	signer, err := signingKeys.Signer(ctx, key)
	if err != nil {
		return err
	}

	audience := t.Audience
	if audience == "" {
		audience = t.TokenURL
	}

	assertion, err := clientauth.NewAssertion(signer, clientauth.AssertionRequest{
		ClientID: t.ClientID,
		Audience: audience,
		TTL:      t.TTL,
		KeyID:    t.Kid,
	})
	if err != nil {
		return err
	}

	w := writerOrStdout(t.stdout)

	if !t.Exchange {
		fmt.Fprintln(w, assertion)
		return nil
	}

	token, err := clientauth.Exchange(ctx, t.TokenURL, t.ClientID, assertion, t.Scopes)
	if err != nil {
		return err
	}

	log.Info().
		Str("token_type", token.TokenType).
		Time("expiry", token.Expiry).
		Msg("Access token issued")

	fmt.Fprintln(w, token.AccessToken)
	return nil
}

// Package clientauth mints OAuth2 client assertions signed by a KMS key and
// exchanges them for access tokens.
package clientauth

import (
	"context"
	"crypto"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultAssertionTTL keeps assertions short lived; token endpoints commonly
	// reject assertions valid for more than five minutes.
	DefaultAssertionTTL = 4 * time.Minute

	// AssertionType is the client_assertion_type for signed JWT client authentication.
	AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// AssertionRequest describes the client assertion to mint.
type AssertionRequest struct {
	ClientID string
	// Audience is normally the token endpoint URL.
	Audience string
	TTL      time.Duration
	// KeyID, when set, is sent in the kid header.
	KeyID string
}

// NewAssertion returns a compact JWT with iss and sub set to the client id,
// aud, a random jti and exp, signed by signer.
func NewAssertion(signer crypto.Signer, req AssertionRequest) (string, error) {
	method, err := SigningMethodFor(signer.Public())
	if err != nil {
		return "", err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}

	claims := jwt.RegisteredClaims{
		Issuer:    req.ClientID,
		Subject:   req.ClientID,
		Audience:  jwt.ClaimStrings{req.Audience},
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}

	token := jwt.NewWithClaims(method, claims)
	if req.KeyID != "" {
		token.Header["kid"] = req.KeyID
	}

	signed, err := token.SignedString(signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}

	log.Debug().
		Str("client_id", req.ClientID).
		Str("audience", req.Audience).
		Str("alg", method.Alg()).
		Msg("signed client assertion")

	return signed, nil
}

// Exchange trades a client assertion for an access token at tokenURL using
// the client credentials grant.
func Exchange(ctx context.Context, tokenURL, clientID, assertion string, scopes []string) (*oauth2.Token, error) {
	cfg := clientcredentials.Config{
		ClientID: clientID,
		TokenURL: tokenURL,
		Scopes:   scopes,
		EndpointParams: url.Values{
			"client_assertion_type": {AssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	token, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange client assertion: %w", err)
	}
	return token, nil
}

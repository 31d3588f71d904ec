package oidc

import (
	"context"
	"errors"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkgindex/backend-go/internal/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type OidcConfig struct {
	ClientID          string
	ClientSecret      string
	DiscoveryEndpoint string
	Tokens            *oauth2.Token
}

type Client interface {
	Login() (*oauth2.Token, error)
	Client() (*http.Client, error)
}

// NewOidcClient resolves the issuer's endpoints through OIDC discovery and
// returns a client-credentials client for the upload gateway.
func NewOidcClient(ctx context.Context, conf OidcConfig) (Client, error) {
	if conf.ClientSecret == "" {
		return nil, errors.New("client credentials are required")
	}
	provider, err := oidc.NewProvider(ctx, conf.DiscoveryEndpoint)
	if err != nil {
		return nil, err
	}
	return &auth.ClientCredentials{
		Config: &clientcredentials.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			Scopes:       []string{"openid", "profile", "email"},
			TokenURL:     provider.Endpoint().TokenURL,
		},
		Tokens: conf.Tokens,
	}, nil
}

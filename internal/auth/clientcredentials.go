package auth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type ClientCredentials struct {
	Config *clientcredentials.Config
	Tokens *oauth2.Token
}

func (cc *ClientCredentials) Login() (*oauth2.Token, error) {
	tokens, err := cc.Config.Token(context.Background())
	if err != nil {
		return nil, err
	}
	cc.Tokens = tokens
	return tokens, nil
}

// Client returns an http client that injects and refreshes the bearer token
// on every request.
func (cc *ClientCredentials) Client() (*http.Client, error) {
	ctx := context.Background()
	if _, err := cc.Config.Token(ctx); err != nil {
		return nil, err
	}
	return cc.Config.Client(ctx), nil
}

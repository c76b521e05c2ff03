package users

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// OAuthConfig configures the resource-owner password grant.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

// OAuthAuthenticator obtains an access token for each user with the OAuth2
// resource-owner password credentials grant.
type OAuthAuthenticator struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuthAuthenticator creates an authenticator for cfg.
func NewOAuthAuthenticator(cfg OAuthConfig) (*OAuthAuthenticator, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("oauth: token URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth: client ID is required")
	}

	return &OAuthAuthenticator{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

// Authenticate implements Authenticator.
func (a *OAuthAuthenticator) Authenticate(ctx context.Context, u User) (User, error) {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	token, err := a.config.PasswordCredentialsToken(ctx, u.Username, u.Password)
	if err != nil {
		return u, fmt.Errorf("oauth: authenticate %s: %w", u.Username, err)
	}

	cred := &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scope:        strings.Join(a.config.Scopes, " "),
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		cred.Scope = scope
	}
	return u.WithCredential(cred), nil
}

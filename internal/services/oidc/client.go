package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

var defaultScopes = []string{"openid", "email", "profile"}

// ErrNoIDToken is returned when the token response carries no ID token.
var ErrNoIDToken = errors.New("token response has no id_token")

// Client performs the authorization code exchange.
type Client struct {
	config *oauth2.Config
}

// NewClient creates an OAuth2 client for the given endpoints.
func NewClient(cfg Config, ep Endpoints) *Client {
	return &Client{config: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       defaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  ep.Authorization,
			TokenURL: ep.Token,
		},
	}}
}

// ExchangeCode trades an authorization code for the user's ID token and its expiry.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, time.Time, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", time.Time{}, ErrNoIDToken
	}
	return idToken, token.Expiry, nil
}

// AuthCodeURL returns the authorization URL
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Package oauth drives the authorization-code flow with PKCE against
// third-party identity providers.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrProviderDenied  = errors.New("provider returned an error")
	ErrMissingCode     = errors.New("missing authorization code")
	ErrMissingState    = errors.New("missing state")
	ErrStateMismatch   = errors.New("state mismatch, possible CSRF")
	ErrNoEmail         = errors.New("provider returned no verified email")
)

// Profile is the identity a provider reports for the signed-in user.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FetchFunc loads the user's profile with an authorized client.
type FetchFunc func(ctx context.Context, client *http.Client) (Profile, error)

type Provider struct {
	Name     string
	Config   *oauth2.Config
	fetch    FetchFunc
	idTokens *KeySet
}

func New(name string, cfg *oauth2.Config, fetch FetchFunc) *Provider {
	return &Provider{Name: name, Config: cfg, fetch: fetch}
}

// WithIDToken makes FetchProfile trust a verified id_token from the token
// response instead of calling fetch.
func (p *Provider) WithIDToken(keys *KeySet) *Provider {
	p.idTokens = keys
	return p
}

// AuthRequest is what the caller must remember between the redirect and
// the callback.
type AuthRequest struct {
	URL      string
	State    string
	Verifier string
}

// NewAuthRequest builds the provider redirect with a random state and an
// S256 PKCE challenge.
func NewAuthRequest(p *Provider) (AuthRequest, error) {
	state, err := randomState()
	if err != nil {
		return AuthRequest{}, err
	}
	verifier := oauth2.GenerateVerifier()
	url := p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	return AuthRequest{URL: url, State: state, Verifier: verifier}, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CallbackParams are the query (or form) values the provider redirects back
// with.
type CallbackParams struct {
	Code             string `query:"code" form:"code"`
	State            string `query:"state" form:"state"`
	Error            string `query:"error" form:"error"`
	ErrorDescription string `query:"error_description" form:"error_description"`
}

// ValidateCallback checks the callback against the state issued with the
// auth request and returns the authorization code.
func ValidateCallback(params CallbackParams, expectedState string) (string, error) {
	if params.Error != "" {
		msg := params.Error
		if params.ErrorDescription != "" {
			msg += ": " + params.ErrorDescription
		}
		return "", fmt.Errorf("%w: %s", ErrProviderDenied, msg)
	}
	if strings.TrimSpace(params.Code) == "" {
		return "", ErrMissingCode
	}
	if params.State == "" || expectedState == "" {
		return "", ErrMissingState
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(expectedState)) != 1 {
		return "", ErrStateMismatch
	}
	return params.Code, nil
}

// Exchange trades the code for a token, proving possession of verifier.
func Exchange(ctx context.Context, p *Provider, code, verifier string) (*oauth2.Token, error) {
	tok, err := p.Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", p.Name, err)
	}
	return tok, nil
}

func FetchProfile(ctx context.Context, p *Provider, tok *oauth2.Token) (Profile, error) {
	var (
		profile Profile
		err     error
	)
	if raw, _ := tok.Extra("id_token").(string); raw != "" && p.idTokens != nil {
		profile, err = p.idTokens.profile(ctx, raw, p.Config.ClientID)
	} else {
		profile, err = p.fetch(ctx, p.Config.Client(ctx, tok))
	}
	if err != nil {
		return Profile{}, fmt.Errorf("%s profile fetch failed: %w", p.Name, err)
	}
	if profile.Email == "" {
		return Profile{}, ErrNoEmail
	}
	profile.Email = strings.ToLower(profile.Email)
	return profile, nil
}

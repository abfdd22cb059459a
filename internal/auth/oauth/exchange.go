// Package oauth turns authorization codes and refresh tokens into provider
// access tokens. It never touches storage.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"golang.org/x/oauth2"
)

// ErrEmptyCode is returned when the callback carried no authorization code.
var ErrEmptyCode = &apperr.ValidationError{Field: "code", Message: "authorization code is required"}

// UnsupportedProviderError means the id is unknown, disabled or cannot do OAuth.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %q", e.Provider)
}

func (e *UnsupportedProviderError) Kind() apperr.Kind { return apperr.KindValidation }

// TokenExchangeError is a rejection from the provider's token endpoint.
type TokenExchangeError struct {
	Provider   string
	StatusCode int
	Code       string // OAuth error code such as invalid_grant, when sent
	Err        error
}

func (e *TokenExchangeError) Error() string {
	msg := fmt.Sprintf("%s token endpoint rejected the request (status %d)", e.Provider, e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

func (e *TokenExchangeError) Kind() apperr.Kind { return apperr.KindUpstream }

// TransientNetworkError means the token endpoint could not be reached.
type TransientNetworkError struct {
	Provider string
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s token endpoint unreachable: %v", e.Provider, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

func (e *TransientNetworkError) Kind() apperr.Kind { return apperr.KindUpstream }

// Token is the result of a successful exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64     // seconds, 0 when the provider sent none
	Expiry       time.Time // zero when the token does not expire
	Scope        string
}

// Exchanger performs code and refresh-token grants against registry providers.
type Exchanger struct {
	catalog      *catalog.Catalog
	redirectBase string
	httpClient   *http.Client
}

// NewExchanger builds an exchanger. redirectBase is the public origin the
// provider redirects back to; callbacks land on <redirectBase>/oauth/<id>.
// A nil httpClient uses http.DefaultClient.
func NewExchanger(c *catalog.Catalog, redirectBase string, httpClient *http.Client) *Exchanger {
	return &Exchanger{
		catalog:      c,
		redirectBase: strings.TrimRight(redirectBase, "/"),
		httpClient:   httpClient,
	}
}

// RedirectURL is the callback registered with the provider.
func (e *Exchanger) RedirectURL(provider string) string {
	return e.redirectBase + "/oauth/" + provider
}

// Supports reports whether provider can take part in an exchange.
func (e *Exchanger) Supports(provider string) bool {
	_, err := e.provider(provider)
	return err == nil
}

// CanRefresh reports whether provider issues refresh tokens we may redeem.
func (e *Exchanger) CanRefresh(provider string) bool {
	p, err := e.provider(provider)
	return err == nil && p.Refreshable
}

// AuthCodeURL returns the consent page URL carrying state.
func (e *Exchanger) AuthCodeURL(provider, state string) (string, error) {
	p, err := e.provider(provider)
	if err != nil {
		return "", err
	}
	var opts []oauth2.AuthCodeOption
	if p.Refreshable {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return e.config(p).AuthCodeURL(state, opts...), nil
}

// Exchange redeems an authorization code.
func (e *Exchanger) Exchange(ctx context.Context, provider, code string) (*Token, error) {
	p, err := e.provider(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	tok, err := e.config(p).Exchange(e.withClient(ctx), code)
	if err != nil {
		return nil, classify(p.ID, err)
	}
	return fromOAuth2(tok), nil
}

// Refresh redeems a refresh token for a new access token. When the provider
// does not rotate refresh tokens the old one is carried over.
func (e *Exchanger) Refresh(ctx context.Context, provider, refreshToken string) (*Token, error) {
	p, err := e.provider(provider)
	if err != nil {
		return nil, err
	}
	if !p.Refreshable || refreshToken == "" {
		return nil, &TokenExchangeError{Provider: p.ID, Code: "refresh_unsupported"}
	}

	src := e.config(p).TokenSource(e.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify(p.ID, err)
	}
	return fromOAuth2(tok), nil
}

func (e *Exchanger) provider(id string) (catalog.Provider, error) {
	p, ok := e.catalog.Enabled(id)
	if !ok || !p.SupportsOAuth() {
		return catalog.Provider{}, &UnsupportedProviderError{Provider: id}
	}
	return p, nil
}

func (e *Exchanger) config(p catalog.Provider) *oauth2.Config {
	endpoint := oauth2.Endpoint{AuthURL: p.AuthURL, TokenURL: p.TokenURL}
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if p.AuthStyle == catalog.AuthStyleHeader {
		endpoint.AuthStyle = oauth2.AuthStyleInHeader
	}

	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  e.RedirectURL(p.ID),
		Scopes:       p.Scopes,
		Endpoint:     endpoint,
	}
}

func (e *Exchanger) withClient(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func classify(provider string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &TokenExchangeError{Provider: provider, StatusCode: status, Code: re.ErrorCode, Err: err}
	}
	var ue *url.Error
	var ne net.Error
	if errors.As(err, &ue) || errors.As(err, &ne) {
		return &TransientNetworkError{Provider: provider, Err: err}
	}
	return &TokenExchangeError{Provider: provider, Err: err}
}

func fromOAuth2(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		Expiry:       tok.Expiry,
	}
	if out.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}

// IsPermanent reports whether a refresh failure means the grant is gone and
// the user has to authorize again.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var te *TokenExchangeError
	if errors.As(err, &te) {
		switch te.Code {
		case "invalid_grant", "invalid_client", "unauthorized_client", "refresh_unsupported":
			return true
		}
		if te.StatusCode == http.StatusBadRequest || te.StatusCode == http.StatusUnauthorized {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var permanentMarkers = []string{
	"invalid_grant",
	"invalid_client",
	"unauthorized_client",
	"token has been expired or revoked",
	"revoked",
}

package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	stateCookie    = "portal_oauth_state"
	returnToCookie = "portal_return_to"
)

// ProviderConfig holds the OIDC settings for the identity provider
type ProviderConfig struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	SessionCookie string
	Scopes        []string
}

// Provider wraps the identity provider's OIDC endpoints: token verification
// for the resolver plus the sign-in redirect flow
type Provider struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	cookieName   string
}

// NewProvider discovers the OIDC provider and builds the verifier
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "__session"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	return &Provider{
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
		cookieName:   cfg.SessionCookie,
	}, nil
}

// Verify implements TokenVerifier using the provider's ID token verifier
func (p *Provider) Verify(ctx context.Context, rawToken string) (string, Claims, error) {
	idToken, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", nil, fmt.Errorf("failed to verify session token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return "", nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return idToken.Subject, Claims(claims), nil
}

// InitiateLogin starts the auth-code flow. The original path the user was
// denied on arrives as the redirect_url query parameter and is preserved
// through the flow in a short-lived cookie.
func (p *Provider) InitiateLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(10 * time.Minute / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if returnTo := r.URL.Query().Get("redirect_url"); isSafeReturnPath(returnTo) {
		http.SetCookie(w, &http.Cookie{
			Name:     returnToCookie,
			Value:    url.QueryEscape(returnTo),
			Path:     "/",
			MaxAge:   int(10 * time.Minute / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	authURL := p.oauth2Config.AuthCodeURL(state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code, verifies the ID token,
// sets the session cookie, and redirects to the preserved return path
func (p *Provider) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateParam := r.URL.Query().Get("state")
	stateCk, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || stateCk.Value != stateParam {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	clearCookie(w, stateCookie)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	oauth2Token, err := p.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, "failed to exchange token", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "missing id_token in response", http.StatusBadGateway)
		return
	}

	if _, err := p.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify ID token", http.StatusBadGateway)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    rawIDToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	returnTo := "/"
	if ck, err := r.Cookie(returnToCookie); err == nil {
		if unescaped, err := url.QueryUnescape(ck.Value); err == nil && isSafeReturnPath(unescaped) {
			returnTo = unescaped
		}
		clearCookie(w, returnToCookie)
	}

	http.Redirect(w, r, returnTo, http.StatusFound)
}

// Logout clears the session cookie and redirects to the landing page
func (p *Provider) Logout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, p.cookieName)
	http.Redirect(w, r, "/", http.StatusFound)
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// isSafeReturnPath accepts only same-site absolute paths, rejecting
// protocol-relative and absolute URLs to prevent open redirects
func isSafeReturnPath(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//")
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

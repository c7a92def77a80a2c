// Package auth obtains and refreshes the bearer tokens required by the Polestar API.
//
// Token acquisition follows the same OAuth flow as the official web app: an authorization
// request against the Polestar ID service yields a resume path, posting the account credentials
// to the resume path yields an authorization code, and the code is exchanged for an access token
// through the getAuthToken GraphQL query. The [Auth] type caches the minted token and re-mints
// transparently once it expires.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/polestar-community/polestar-go/internal/log"
)

const (
	// DefaultOAuthBase is the production Polestar ID server.
	DefaultOAuthBase = "https://polestarid.eu.polestar.com"
	// DefaultTokenEndpoint is the production GraphQL endpoint for token exchange.
	DefaultTokenEndpoint = "https://pc-api.polestar.com/eu-north-1/auth/"

	clientID    = "polmystar"
	redirectURI = "https://www.polestar.com/sign-in-callback"
)

// expiryMargin is subtracted from the reported token lifetime so a token is re-minted before the
// server stops accepting it.
const expiryMargin = 30 * time.Second

const tokenQuery = "query getAuthToken($code: String!) { getAuthToken(code: $code) { id_token access_token refresh_token expires_in }}"

// Auth supplies request headers for the vehicle data API and can mint a new token on demand.
// It is safe for concurrent use.
type Auth struct {
	// OAuthBase and TokenEndpoint default to the production servers and can be overridden
	// before first use.
	OAuthBase     string
	TokenEndpoint string

	username string
	password string
	client   *http.Client

	lock      sync.Mutex
	token     string
	expiresAt time.Time
}

// New returns an Auth for the given account credentials. The client may be nil, in which case a
// default client is used; the client must follow redirects, as the OAuth flow depends on them.
func New(username, password string, client *http.Client) *Auth {
	if client == nil {
		client = &http.Client{}
	}
	return &Auth{
		OAuthBase:     DefaultOAuthBase,
		TokenEndpoint: DefaultTokenEndpoint,
		username:      username,
		password:      password,
		client:        client,
	}
}

// Headers returns the headers for a vehicle data API request, minting a token on first use or
// after the cached token has expired.
func (a *Auth) Headers(ctx context.Context) (map[string]string, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.token == "" || !time.Now().Before(a.expiresAt) {
		if err := a.mintToken(ctx); err != nil {
			return nil, err
		}
	}
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + a.token,
	}, nil
}

// Refresh discards the cached token and mints a new one.
func (a *Auth) Refresh(ctx context.Context) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.mintToken(ctx)
}

// AccessToken returns the cached token, or "" when no token has been minted yet. Intended for
// callers that persist tokens between runs.
func (a *Auth) AccessToken() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.token
}

// SetAccessToken seeds the Auth with a previously issued token. The token is only used while its
// exp claim lies in the future; otherwise the next request mints a fresh one.
func (a *Auth) SetAccessToken(token string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.token = token
	a.expiresAt = time.Time{}
	if expiry, ok := tokenExpiry(token); ok {
		a.expiresAt = expiry.Add(-expiryMargin)
	}
}

// mintToken runs the full authorization flow. Callers must hold a.lock.
func (a *Auth) mintToken(ctx context.Context) error {
	code, err := a.authorizationCode(ctx)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	variables, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return err
	}
	query := url.Values{}
	query.Set("query", tokenQuery)
	query.Set("operationName", "getAuthToken")
	query.Set("variables", string(variables))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.TokenEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := a.client.Do(request)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange failed: %s", response.Status)
	}

	payload := gjson.GetBytes(body, "data.getAuthToken")
	token := payload.Get("access_token").Str
	if token == "" {
		return fmt.Errorf("token exchange response contained no access token")
	}
	a.token = token
	if lifetime := payload.Get("expires_in").Int(); lifetime > 0 {
		a.expiresAt = time.Now().Add(time.Duration(lifetime)*time.Second - expiryMargin)
	} else if expiry, ok := tokenExpiry(token); ok {
		a.expiresAt = expiry.Add(-expiryMargin)
	} else {
		a.expiresAt = time.Time{}
	}
	log.Info("Obtained access token, valid until %s", a.expiresAt.Format(time.RFC3339))
	return nil
}

// authorizationCode logs the account in and returns the resulting authorization code.
func (a *Auth) authorizationCode(ctx context.Context) (string, error) {
	resumePath, err := a.resumePath(ctx)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("pf.username", a.username)
	form.Set("pf.pass", a.password)
	loginURL := fmt.Sprintf("%s/as/%s/resume/as/authorization.oauth2?client_id=%s", a.OAuthBase, resumePath, clientID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response, err := a.client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)

	// Following the post-login redirect lands on the sign-in callback with the code in its
	// query string.
	code := response.Request.URL.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("login did not yield an authorization code (check credentials)")
	}
	return code, nil
}

// resumePath starts the authorization flow and extracts the resume path from the login page URL
// the server redirects to.
func (a *Auth) resumePath(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.OAuthBase+"/as/authorization.oauth2?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	response, err := a.client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)

	resumePath := response.Request.URL.Query().Get("resumePath")
	if resumePath == "" {
		return "", fmt.Errorf("authorization response contained no resume path")
	}
	return resumePath, nil
}

// tokenExpiry decodes the exp claim from an access token. The token is not verified; the client
// has no key material for that, and the server re-checks every request anyway.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, false
	}
	return expiry.Time, true
}

package polestar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/polestar-community/polestar-go/internal/log"
)

// DefaultEndpoint is the production GraphQL endpoint for vehicle data.
const DefaultEndpoint = "https://pc-api.polestar.com/eu-north-1/my-star/"

// notAuthenticatedMessage is the exact error message the API returns when a request carries an
// expired or invalid token.
const notAuthenticatedMessage = "User not authenticated"

// maxAuthAttempts bounds the refresh-and-retry loop. The API rejecting a freshly minted token is
// not recoverable by further retries.
const maxAuthAttempts = 2

// ErrAuthenticationFailed indicates the API kept rejecting the token even after a refresh.
var ErrAuthenticationFailed = errors.New("authentication failed after token refresh")

// Authenticator supplies request headers for the vehicle data API and can mint a new token when
// the current one is rejected. Implemented by [pkg/auth.Auth].
type Authenticator interface {
	Headers(ctx context.Context) (map[string]string, error)
	Refresh(ctx context.Context) error
}

// QueryParams describe one of the fixed GraphQL documents and its variables.
type QueryParams struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
}

// Client executes fixed GraphQL queries against the vehicle data API.
type Client struct {
	// Endpoint defaults to DefaultEndpoint and can be overridden before first use.
	Endpoint string
	auth     Authenticator
	client   *http.Client
}

// NewClient returns a Client that authenticates requests through auth. The http client may be
// nil, in which case a default client is used; timeout policy belongs to the http client, the
// Client adds none of its own.
func NewClient(auth Authenticator, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		Endpoint: DefaultEndpoint,
		auth:     auth,
		client:   client,
	}
}

// Execute runs the query and returns the parsed response document.
//
// When the response reports the not-authenticated error, Execute refreshes the token and retries
// the request; the retry budget is fixed and exhausting it returns ErrAuthenticationFailed. Any
// other upstream error is logged as a warning and the response is returned as-is, with its
// errors field intact for the caller to inspect.
func (c *Client) Execute(ctx context.Context, params QueryParams) (gjson.Result, error) {
	for attempt := 1; ; attempt++ {
		result, err := c.execute(ctx, params)
		if err != nil {
			return gjson.Result{}, err
		}
		upstream := result.Get("errors")
		if !upstream.Exists() {
			return result, nil
		}
		if upstream.Get("0.message").Str != notAuthenticatedMessage {
			log.Warning("%s returned errors: %s", params.OperationName, upstream.Raw)
			return result, nil
		}
		if attempt >= maxAuthAttempts {
			return gjson.Result{}, ErrAuthenticationFailed
		}
		log.Info("Token rejected, refreshing and retrying %s", params.OperationName)
		if err := c.auth.Refresh(ctx); err != nil {
			return gjson.Result{}, fmt.Errorf("token refresh failed: %w", err)
		}
	}
}

func (c *Client) execute(ctx context.Context, params QueryParams) (gjson.Result, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("could not obtain auth headers: %w", err)
	}

	variables := params.Variables
	if variables == nil {
		variables = map[string]interface{}{}
	}
	encoded, err := json.Marshal(variables)
	if err != nil {
		return gjson.Result{}, err
	}
	query := url.Values{}
	query.Set("query", params.Query)
	query.Set("operationName", params.OperationName)
	query.Set("variables", string(encoded))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("error constructing request for %s: %w", params.OperationName, err)
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}

	log.Debug("Requesting %s from %s...", params.OperationName, c.Endpoint)
	response, err := c.client.Do(request)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("error fetching %s: %w", params.OperationName, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("http error fetching %s: %s", params.OperationName, response.Status)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	log.Debug("Received: %s", body)
	return gjson.ParseBytes(body), nil
}

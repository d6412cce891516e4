// Package apiclient to provide methods to send HTTP requests
// to the finsync server.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"agrofin/finsync/syncer"
)

const (
	// DefaultBaseURL is the default address of a locally running server.
	DefaultBaseURL = "http://localhost:8080"
)

// ErrHTTPUnexpectedStatusCode is returned for any non-200 response.
var ErrHTTPUnexpectedStatusCode = errors.New("unexpected http status code")
var errHTTPBasePathFormatting = errors.New("error formatting HTTP base path")
var errHTTPBodyUnmarshall = errors.New("error unmarshalling HTTP response body")

// APIClient manages the endpoints of the finsync API.
type APIClient struct {
	// a pointer to the http client to use.
	HTTPClient *http.Client
	// a pointer to the url to be used as a base url for all requests.
	BasePath *url.URL
}

// HTTPUnexpectedStatusCodeError is a error wrapper. message is the server's error text, if any.
func HTTPUnexpectedStatusCodeError(statusCode int, message string) error {
	if message == "" {
		return fmt.Errorf("%w, %d", ErrHTTPUnexpectedStatusCode, statusCode)
	}
	return fmt.Errorf("%w, %d: %s", ErrHTTPUnexpectedStatusCode, statusCode, message)
}

func HTTPBasePathFormattingError(basePath string) error {
	return fmt.Errorf("%w, %s", errHTTPBasePathFormatting, basePath)
}

func HTTPBodyUnmarshallError(baseErr error) error {
	return fmt.Errorf("%w, %w", errHTTPBodyUnmarshall, baseErr)
}

// NewAPIClient creates a new APIClient.
func NewAPIClient(httpClient *http.Client, basePath string) (*APIClient, error) {
	// Use a default http client if none is provided.
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	basePathURL, err := url.Parse(basePath)
	if err != nil || basePathURL.Scheme == "" || basePathURL.Host == "" {
		return nil, HTTPBasePathFormattingError(basePath)
	}

	return &APIClient{
		HTTPClient: httpClient,
		BasePath:   basePathURL,
	}, nil
}

// errorResponse is the body the server sends with non-200 statuses.
type errorResponse struct {
	Error string `json:"error"`
}

// Health sends a GET request to the /healthz endpoint.
func (c *APIClient) Health(ctx context.Context) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, "/healthz")
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp, HTTPUnexpectedStatusCodeError(resp.StatusCode, "")
	}
	return resp, nil
}

// TriggerSync sends a POST request to the /api/sync endpoint and returns the run verdict.
// A run that ends in the "error" state is still a successful call.
func (c *APIClient) TriggerSync(ctx context.Context) (*http.Response, *syncer.Result, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/sync")
	if err != nil {
		return resp, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var debugMsg errorResponse
		// An unparseable error body still reports the status.
		_ = json.Unmarshal(body, &debugMsg)
		return resp, nil, HTTPUnexpectedStatusCodeError(resp.StatusCode, debugMsg.Error)
	}

	var result syncer.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return resp, nil, HTTPBodyUnmarshallError(err)
	}
	return resp, &result, nil
}

func (c *APIClient) do(ctx context.Context, method, path string) (*http.Response, error) {
	// Use ResolveReference to correctly combine the base URL with the endpoint path.
	target := c.BasePath.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return resp, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

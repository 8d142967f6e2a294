package twelvedata

import (
	"net/http"
)

// Name identifies Twelve Data in envelopes and logs.
const Name = "twelvedata"

// baseURL is the public Twelve Data REST endpoint.
const baseURL = "https://api.twelvedata.com"

// MissingKeyMessage is reported when no API key is configured.
const MissingKeyMessage = "Missing TWELVEDATA_API_KEY env var"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=twelvedata_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Twelve Data API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// apiKey authenticates every request; empty means unconfigured.
	apiKey string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// ClientOption is a configuration option for the Twelve Data client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Twelve Data client. An empty key is accepted; every
// call then fails with a configuration error.
func NewClient(key string, options ...ClientOption) (*Client, error) {
	var client = &Client{
		baseURL:    baseURL,
		apiKey:     key,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"quoteproxy/internal/provider"
	"quoteproxy/internal/provider/extract"
)

// GetQuote retrieves the /quote payload for symbol (e.g. "EUR/USD").
// The body is returned verbatim. Twelve Data reports some failures with
// HTTP 200 and a body such as {"code":400,"status":"error"}; those are
// returned as payload errors carrying the body.
func (c *Client) GetQuote(ctx context.Context, symbol string) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, provider.ConfigError(Name, MissingKeyMessage)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("apikey", c.apiKey)

	endpoint := fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &provider.Error{Provider: Name, Kind: provider.KindTransport, Message: "creating request", Err: err}
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	raw, err := provider.DoJSON(c.httpClient, Name, req)
	if err != nil {
		return nil, err
	}
	if msg, ok := payloadError(raw); ok {
		return nil, &provider.Error{Provider: Name, Kind: provider.KindPayload, StatusCode: http.StatusOK, Message: msg, Raw: raw}
	}
	return raw, nil
}

// payloadError detects {"status":"error"} and numeric codes >= 400.
func payloadError(raw []byte) (string, bool) {
	status := extract.StringAt(raw, "status")
	code, hasCode := extract.Int64At(raw, "code")
	if status != "error" && !(hasCode && code >= 400) {
		return "", false
	}
	msg := extract.StringAt(raw, "message")
	if msg == "" {
		msg = "provider reported an error"
	}
	if hasCode {
		msg = fmt.Sprintf("code %d: %s", code, msg)
	}
	return msg, true
}

package provider

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
)

// maxBody caps how much of an upstream body is read.
const maxBody = 1 << 20

// HTTPClient describes an HTTP client.
type HTTPClient interface {
    Do(req *http.Request) (*http.Response, error)
}

// GetJSON performs a GET and returns the body when it is valid JSON.
func GetJSON(ctx context.Context, hc HTTPClient, name, url string) (json.RawMessage, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
    if err != nil {
        return nil, &Error{Provider: name, Kind: KindTransport, Message: "creating request", Err: err}
    }
    req.Header.Set("Accept", "application/json")
    return DoJSON(hc, name, req)
}

// DoJSON sends req and returns the body when the status is 2xx and the body
// is valid JSON. Non-2xx statuses still carry the body (as JSON when possible)
// inside the Error so callers can surface the upstream payload.
func DoJSON(hc HTTPClient, name string, req *http.Request) (json.RawMessage, error) {
    res, err := hc.Do(req)
    if err != nil {
        return nil, &Error{Provider: name, Kind: KindTransport, Message: fmt.Sprintf("performing request: %v", err), Err: err}
    }
    defer res.Body.Close()

    b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
    if err != nil {
        return nil, &Error{Provider: name, Kind: KindTransport, StatusCode: res.StatusCode, Message: fmt.Sprintf("reading body: %v", err), Err: err}
    }
    raw := RawOrString(b)
    if res.StatusCode < 200 || res.StatusCode >= 300 {
        return nil, &Error{Provider: name, Kind: KindStatus, StatusCode: res.StatusCode, Message: statusText(res), Raw: raw}
    }
    if !json.Valid(b) {
        return nil, &Error{Provider: name, Kind: KindDecode, StatusCode: res.StatusCode, Message: "response body is not JSON", Raw: raw}
    }
    return json.RawMessage(b), nil
}

func statusText(res *http.Response) string {
    if t := http.StatusText(res.StatusCode); t != "" { return t }
    return res.Status
}

// RawOrString returns b when it is JSON, otherwise b encoded as a JSON string.
func RawOrString(b []byte) json.RawMessage {
    if len(b) == 0 { return nil }
    if json.Valid(b) { return json.RawMessage(b) }
    s, _ := json.Marshal(string(b))
    return s
}

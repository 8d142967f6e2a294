package provider

import (
    "encoding/json"
    "errors"
    "fmt"
)

// Kind classifies a provider failure.
type Kind int

const (
    KindStatus    Kind = iota + 1 // non-2xx HTTP status
    KindPayload                   // provider-reported error in the body
    KindDecode                    // body is not JSON
    KindNoPrice                   // no finite price field
    KindTransport                 // request never produced a response
    KindConfig                    // missing credential or endpoint
)

func (k Kind) String() string {
    switch k {
    case KindStatus:
        return "status"
    case KindPayload:
        return "payload"
    case KindDecode:
        return "decode"
    case KindNoPrice:
        return "no_price"
    case KindTransport:
        return "transport"
    case KindConfig:
        return "config"
    default:
        return "unknown"
    }
}

// Error describes why a provider did not produce a quote.
type Error struct {
    Provider   string
    Kind       Kind
    StatusCode int
    Message    string
    // Raw is the upstream body when one was received.
    Raw json.RawMessage
    Err error
}

func (e *Error) Error() string {
    msg := e.Message
    if msg == "" && e.Err != nil { msg = e.Err.Error() }
    if e.StatusCode != 0 {
        return fmt.Sprintf("%s: %s error (HTTP %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
    }
    return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the JSON form used in failure envelopes.
type Detail struct {
    Provider   string          `json:"provider"`
    Kind       string          `json:"kind"`
    StatusCode int             `json:"status_code,omitempty"`
    Message    string          `json:"message"`
    Raw        json.RawMessage `json:"raw,omitempty"`
}

func (e *Error) Detail() Detail {
    msg := e.Message
    if msg == "" && e.Err != nil { msg = e.Err.Error() }
    return Detail{Provider: e.Provider, Kind: e.Kind.String(), StatusCode: e.StatusCode, Message: msg, Raw: e.Raw}
}

// DetailOf converts any error into a Detail; non-provider errors are
// reported as transport failures of the named source.
func DetailOf(source string, err error) Detail {
    var pe *Error
    if errors.As(err, &pe) { return pe.Detail() }
    return Detail{Provider: source, Kind: KindTransport.String(), Message: err.Error()}
}

// IsKind reports whether err is a provider Error of kind k.
func IsKind(err error, k Kind) bool {
    var pe *Error
    return errors.As(err, &pe) && pe.Kind == k
}

// ConfigError builds the error returned when a provider lacks a credential.
func ConfigError(name, msg string) *Error {
    return &Error{Provider: name, Kind: KindConfig, Message: msg}
}

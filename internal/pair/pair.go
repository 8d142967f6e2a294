package pair

import (
    "errors"
    "fmt"
    "strings"
)

// Default is used when a request names no pair.
const Default = "EUR/USD"

var (
    // ErrInvalid reports input that cannot be read as BASE/QUOTE.
    ErrInvalid = errors.New("invalid pair")
    // ErrUnsupported reports a well-formed pair outside the configured set.
    ErrUnsupported = errors.New("unsupported pair")
)

// Pair is a normalized currency pair, e.g. EUR/USD.
type Pair struct {
    Base  string
    Quote string
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// Concat returns the pair without a delimiter (EURUSD).
func (p Pair) Concat() string { return p.Base + p.Quote }

// Parse normalizes raw input into a Pair.
// Rules:
// - trim and upper-case
// - "EUR/USD" splits on the slash; each side 2-10 letters or digits
// - "EURUSD" (exactly six letters) splits into two ISO codes
// - empty input means Default
func Parse(raw string) (Pair, error) {
    s := strings.ToUpper(strings.TrimSpace(raw))
    if s == "" { s = Default }

    if base, quote, ok := strings.Cut(s, "/"); ok {
        base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
        if !validCode(base) || !validCode(quote) {
            return Pair{}, fmt.Errorf("%w: %q", ErrInvalid, raw)
        }
        return Pair{Base: base, Quote: quote}, nil
    }

    if len(s) == 6 && isLetters(s) {
        return Pair{Base: s[:3], Quote: s[3:]}, nil
    }
    return Pair{}, fmt.Errorf("%w: %q (want XXX/YYY or XXXYYY)", ErrInvalid, raw)
}


// Set is an allow-list of normalized pairs. An empty Set allows everything.
type Set map[string]struct{}

// NewSet normalizes every entry; invalid entries are reported.
func NewSet(pairs []string) (Set, error) {
    s := make(Set, len(pairs))
    for _, raw := range pairs {
        p, err := Parse(raw)
        if err != nil { return nil, err }
        s[p.String()] = struct{}{}
    }
    return s, nil
}

// Check returns ErrUnsupported when p is not in a non-empty set.
func (s Set) Check(p Pair) error {
    if len(s) == 0 { return nil }
    if _, ok := s[p.String()]; ok { return nil }
    return fmt.Errorf("%w: %s", ErrUnsupported, p)
}

func validCode(s string) bool {
    if len(s) < 2 || len(s) > 10 { return false }
    for _, r := range s {
        if (r < 'A' || r > 'Z') && (r < '0' || r > '9') { return false }
    }
    return true
}

func isLetters(s string) bool {
    for _, r := range s {
        if r < 'A' || r > 'Z' { return false }
    }
    return true
}

package carrier

import (
	"encoding/json"
	"fmt"
)

// Kind separates benign "no data" outcomes from failed calls.
type Kind int

const (
	KindOK Kind = iota
	// KindNotConfigured means no call was issued because credentials are missing.
	KindNotConfigured
	// KindFailed means a call was issued and did not produce a usable body.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotConfigured:
		return "not_configured"
	case KindFailed:
		return "failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason narrows a KindFailed result.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonTransport  Reason = "transport"
	ReasonHTTPStatus Reason = "http_status"
	ReasonDecode     Reason = "decode"
)

// Result is the outcome of one carrier call.
type Result struct {
	Kind       Kind
	Reason     Reason
	Context    string // verb and endpoint, e.g. "GET /packages/track/PM1"
	StatusCode int
	Body       []byte
	Err        error
}

func (r Result) OK() bool { return r.Kind == KindOK }

// Outcome is the metric label for r.
func (r Result) Outcome() string {
	if r.Kind == KindFailed && r.Reason != ReasonNone {
		return string(r.Reason)
	}
	return r.Kind.String()
}

func (r Result) Error() string {
	switch r.Kind {
	case KindOK:
		return ""
	case KindNotConfigured:
		return r.Context + ": carrier API not configured"
	}
	switch r.Reason {
	case ReasonHTTPStatus:
		return fmt.Sprintf("%s: HTTP %d", r.Context, r.StatusCode)
	case ReasonDecode:
		return fmt.Sprintf("%s: invalid JSON returned: %v", r.Context, r.Err)
	}
	return fmt.Sprintf("%s: %v", r.Context, r.Err)
}

// decodeInto unmarshals an OK body into v. A body that does not fit v turns the
// result into a decode failure.
func (r Result) decodeInto(v any) Result {
	if !r.OK() {
		return r
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.Kind = KindFailed
		r.Reason = ReasonDecode
		r.Err = err
	}
	return r
}

// Package dispatcher implements the wire envelope, method registry,
// and engine lock described in spec.md §4.7.
package dispatcher

import (
	"encoding/json"
	"time"
)

// MaxLineBytes is the maximum size of one request line on any
// transport, per spec.md §4.8. A longer line yields ERR_PARSE.
const MaxLineBytes = 32 * 1024

// Options carries the envelope's per-request knobs, per spec.md §4.7.
type Options struct {
	TimeoutMs int    `json:"timeout_ms"`
	DryRun    bool   `json:"dry_run"`
	Namespace string `json:"namespace"`
}

func defaultOptions() Options {
	return Options{TimeoutMs: 0, DryRun: false, Namespace: "default"}
}

// Error is the envelope's error shape, per spec.md §4.7.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " (" + e.Details + ")"
	}
	return e.Code + ": " + e.Message
}

// Standard error codes, per spec.md §4.7.
const (
	CodeParse          = "ERR_PARSE"
	CodeParams         = "ERR_PARAMS"
	CodeMethod         = "ERR_METHOD"
	CodeConsentDenied  = "ERR_CONSENT_DENIED"
	CodeNotFound       = "ERR_NOT_FOUND"
	CodeTierFull       = "ERR_TIER_FULL"
	CodeIO             = "ERR_IO"
	CodeInternal       = "ERR_INTERNAL"
)

// Metadata is stamped onto every response, per spec.md §4.7.
type Metadata struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Namespace  string    `json:"namespace"`
}

// Envelope is the shared request/response shape of spec.md §4.7.
type Envelope struct {
	Version  string          `json:"version"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params,omitempty"`
	Options  Options         `json:"options"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *Error          `json:"error"`
	Metadata Metadata        `json:"metadata"`
}

// parseEnvelope parses a raw request line. Unlike json.Unmarshal
// directly into Envelope, it fills in option defaults per spec.md
// §4.7 step 3 (timeout_ms=0, dry_run=false, namespace="default").
func parseEnvelope(line []byte) (*Envelope, *Error) {
	var raw struct {
		Version string          `json:"version"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		Options *struct {
			TimeoutMs *int    `json:"timeout_ms"`
			DryRun    *bool   `json:"dry_run"`
			Namespace *string `json:"namespace"`
		} `json:"options"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &Error{Code: CodeParse, Message: "malformed JSON envelope", Details: err.Error()}
	}

	env := &Envelope{
		Version: raw.Version,
		Method:  raw.Method,
		Params:  raw.Params,
		Options: defaultOptions(),
	}
	if raw.Options != nil {
		if raw.Options.TimeoutMs != nil {
			env.Options.TimeoutMs = *raw.Options.TimeoutMs
		}
		if raw.Options.DryRun != nil {
			env.Options.DryRun = *raw.Options.DryRun
		}
		if raw.Options.Namespace != nil && *raw.Options.Namespace != "" {
			env.Options.Namespace = *raw.Options.Namespace
		}
	}
	if env.Method == "" {
		return env, &Error{Code: CodeParams, Message: "method is required"}
	}
	return env, nil
}

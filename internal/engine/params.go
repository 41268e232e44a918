package engine

import (
	"encoding/json"

	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/session"
)

// decodeParams unmarshals raw into v, reporting ERR_PARAMS (not
// ERR_PARSE — the envelope itself already parsed) on a malformed or
// mistyped params object.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &dispatcher.Error{Code: dispatcher.CodeParams, Message: "malformed params", Details: err.Error()}
	}
	return nil
}

// errMissingField builds an ERR_PARAMS error naming the absent field.
func errMissingField(name string) error {
	return &dispatcher.Error{Code: dispatcher.CodeParams, Message: name + " is required"}
}

// requireRegistered returns ERR_PARAMS when the connection has not yet
// called register() — spec.md §7 names this a state error but does not
// mint a dedicated wire code, so it maps to the closest standard one.
func requireRegistered(sess *session.Session) error {
	snap := sess.Snapshot()
	if !snap.Registered || snap.OwnerID == "" {
		return &dispatcher.Error{Code: dispatcher.CodeParams, Message: "session is not registered; call register first"}
	}
	return nil
}

func errNotFound(message string) error {
	return &dispatcher.Error{Code: dispatcher.CodeNotFound, Message: message}
}

func errInternal(err error) error {
	return &dispatcher.Error{Code: dispatcher.CodeInternal, Message: err.Error()}
}

func errIO(err error) error {
	return &dispatcher.Error{Code: dispatcher.CodeIO, Message: err.Error()}
}

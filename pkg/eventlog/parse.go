package eventlog

import (
	"bytes"
	"encoding/json"
	"regexp"
)

// unquotedKey matches an object key written without quotes, such as the
// foo in {foo: 1}.
var unquotedKey = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)

// Batch is the result of parsing a batch body.
type Batch struct {
	// Events holds one raw JSON value per event.
	Events []json.RawMessage

	// Repaired is set when unquoted keys had to be quoted.
	Repaired bool
}

// ParseBatch parses a telemetry batch body.
//
// An array yields its elements, an object yields itself, and any other JSON
// value v yields {"raw_data": v}. A body that is not valid JSON is retried
// once with unquoted keys quoted; if that fails too a *ParseError is
// returned. An empty body yields no events.
func ParseBatch(body []byte) (*Batch, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &Batch{}, nil
	}

	batch := &Batch{}
	if !json.Valid(body) {
		fixed := unquotedKey.ReplaceAll(body, []byte(`$1"$2"$3`))
		if !json.Valid(fixed) {
			var probe any
			return nil, &ParseError{Cause: json.Unmarshal(body, &probe)}
		}
		body = fixed
		batch.Repaired = true
	}

	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &batch.Events); err != nil {
			return nil, &ParseError{Cause: err}
		}
	case '{':
		batch.Events = []json.RawMessage{json.RawMessage(body)}
	default:
		wrapped, err := json.Marshal(map[string]json.RawMessage{"raw_data": body})
		if err != nil {
			return nil, &ParseError{Cause: err}
		}
		batch.Events = []json.RawMessage{wrapped}
	}

	return batch, nil
}

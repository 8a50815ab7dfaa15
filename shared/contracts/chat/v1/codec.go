package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrBadFormat marks input that is not a single well-formed JSON object.
var ErrBadFormat = errors.New("bad format")

// Decode parses one client request.
//
// Errors wrap ErrBadFormat (undecodable or missing fields) or ErrUnknownType.
func Decode(data []byte) (Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrBadFormat)
	}
	if !utf8.Valid(data) {
		return Envelope{}, fmt.Errorf("%w: invalid utf-8", ErrBadFormat)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	keys := make(map[string]struct{}, len(raw))
	for k, v := range raw {
		if string(v) == "null" {
			continue
		}
		keys[k] = struct{}{}
	}

	if err := Validate(env.Type, keys); err != nil {
		if errors.Is(err, ErrUnknownType) {
			return env, err
		}
		return env, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return env, nil
}

// Encode marshals a server message (or a client Envelope, for tests and tools).
func Encode(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

// DecodeAny parses any envelope without request validation.
// Clients use it to read server messages.
func DecodeAny(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing field: type", ErrBadFormat)
	}
	return env, nil
}

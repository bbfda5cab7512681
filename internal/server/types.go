// Package server defines shared message payload types and utility helpers that
// are reused across the HTTP and WebSocket handlers.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	errMissingPhrases = errors.New(`missing "phrases" field`)
	errNullPhrase     = errors.New("phrases must not contain null")
	errTrailingData   = errors.New("unexpected data after phrases message")
)

// RecordPhrasesMessage is the JSON body accepted by the recording endpoints
// and by inbound WebSocket messages.
type RecordPhrasesMessage struct {
	Phrases []string `json:"phrases"`
}

// recordPhrasesWire keeps null elements distinguishable from empty strings.
type recordPhrasesWire struct {
	Phrases []*string `json:"phrases"`
}

// decodeRecordPhrases reads exactly one RecordPhrasesMessage from r. Errors
// returned by r itself (such as a body limit being hit) are passed through
// unwrapped.
func decodeRecordPhrases(r io.Reader) (RecordPhrasesMessage, error) {
	var wire recordPhrasesWire
	dec := json.NewDecoder(r)

	if err := dec.Decode(&wire); err != nil {
		return RecordPhrasesMessage{}, invalidOrPassthrough(err)
	}
	if err := requireEOF(dec); err != nil {
		return RecordPhrasesMessage{}, err
	}

	if wire.Phrases == nil {
		return RecordPhrasesMessage{}, errMissingPhrases
	}
	msg := RecordPhrasesMessage{Phrases: make([]string, len(wire.Phrases))}
	for i, phrase := range wire.Phrases {
		if phrase == nil {
			return RecordPhrasesMessage{}, fmt.Errorf("invalid phrases message: %w", errNullPhrase)
		}
		msg.Phrases[i] = *phrase
	}
	return msg, nil
}

// requireEOF fails unless only whitespace follows the decoded value.
func requireEOF(dec *json.Decoder) error {
	_, err := dec.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return fmt.Errorf("invalid phrases message: %w", errTrailingData)
	default:
		return invalidOrPassthrough(err)
	}
}

func invalidOrPassthrough(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("invalid phrases message: %w", err)
	default:
		return err
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxJSONDepth bounds nesting in tool input payloads.
const DefaultMaxJSONDepth = 32

var (
	// ErrPayloadTooLarge is returned when a tool input exceeds the
	// policy's size cap.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrJSONTooDeep is returned when a payload nests deeper than the
	// depth limit. This protects against JSON bombs.
	ErrJSONTooDeep = errors.New("JSON nesting exceeds maximum depth")

	// ErrInvalidJSON is returned for payloads that do not parse.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// ValidatePayloadSize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxPayloadBytes is used.
func ValidatePayloadSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxPayloadBytes
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %w: %d bytes (max %d)", ErrValidation, ErrPayloadTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data does not nest deeper than
// limit levels. If limit is <= 0, DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: %w: depth %d (max %d)", ErrValidation, ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

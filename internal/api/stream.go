package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxEventSize bounds one event. A put at the stream root carries the whole
// subtree, so this is generous.
const maxEventSize = 16 << 20

// EventReader splits a text/event-stream body into StreamEvents.
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader returns a reader over r.
func NewEventReader(r io.Reader) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &EventReader{scanner: scanner}
}

// Next returns the next event. It returns io.EOF when the stream ends
// cleanly and ErrStreamClosed after a cancel or auth_revoked event.
func (r *EventReader) Next() (*StreamEvent, error) {
	var name string
	var data strings.Builder

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if name == "" && data.Len() == 0 {
				continue
			}
			return dispatch(name, data.String())
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if name != "" {
		return dispatch(name, data.String())
	}
	return nil, io.EOF
}

func dispatch(name, data string) (*StreamEvent, error) {
	switch name {
	case EventPut, EventPatch:
		var payload streamPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("malformed %s event: %w", name, err)
		}
		if payload.Path == "" {
			payload.Path = "/"
		}
		return &StreamEvent{Event: name, Path: payload.Path, Data: payload.Data}, nil
	case EventCancel, EventAuthRevoked:
		return nil, fmt.Errorf("%w: %s %s", ErrStreamClosed, name, strings.TrimSpace(data))
	default:
		return &StreamEvent{Event: name, Data: json.RawMessage(data)}, nil
	}
}

package wire

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/kbukum/wirekit/errors"
)

// Push protocol framing: one frame is a block of "<field>: <value>" lines
// terminated by a blank line. EncodePush writes the event/data pair;
// DecodePushChunk recovers frames from a byte stream that may cut frames
// at arbitrary points.

var (
	frameSep  = []byte("\n\n")
	lineSep   = []byte("\n")
	prefEvent = []byte("event:")
	prefData  = []byte("data:")
	prefID    = []byte("id:")
	prefRetry = []byte("retry:")
)

// PushFrame is one decoded push-protocol frame.
type PushFrame struct {
	// Event is the event name, empty for unnamed frames.
	Event string

	// Data holds the JSON payload when the data value parsed as JSON.
	Data json.RawMessage

	// Message holds the raw data text when it did not parse as JSON.
	// At most one of Data and Message is set.
	Message string

	// ID is the frame id used for resume tracking, empty when absent.
	ID string

	// Retry carries a reconnect-delay hint, zero when absent.
	Retry time.Duration
}

// EncodePush marshals the payload and formats a complete push frame:
//
//	event: <name>\ndata: <json>\n\n
func EncodePush(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.SerializationFailure(name, err)
	}
	return EncodePushRaw(name, data), nil
}

// EncodePushRaw formats a push frame around pre-marshaled payload bytes.
func EncodePushRaw(name string, data []byte) []byte {
	frame := make([]byte, 0, len(prefEvent)+len(name)+len(prefData)+len(data)+6)
	frame = append(frame, prefEvent...)
	frame = append(frame, ' ')
	frame = append(frame, name...)
	frame = append(frame, '\n')
	frame = append(frame, prefData...)
	frame = append(frame, ' ')
	frame = append(frame, data...)
	frame = append(frame, frameSep...)
	return frame
}

// Comment formats a push-protocol comment line, ignored by decoders.
// Used for keepalives.
func Comment(text string) []byte {
	return []byte(": " + text + "\n\n")
}

// RetryHint formats a standalone frame advertising a reconnect delay
// in milliseconds.
func RetryHint(d time.Duration) []byte {
	return []byte("retry: " + strconv.FormatInt(d.Milliseconds(), 10) + "\n\n")
}

// DecodePushChunk splits buf into complete frames and the trailing
// remainder. The remainder is always returned, even when empty, so
// callers can carry partial frames across reads:
//
//	frames, rest := wire.DecodePushChunk(append(rest, chunk...))
//
// Within a frame, lines with an unrecognized prefix and comment lines
// (leading ':') are skipped. A data value that parses as JSON lands in
// Data; otherwise the raw text is kept in Message. A numeric retry value
// is read as milliseconds; non-numeric retry lines are ignored. Blocks
// with no recognized content produce no frame.
func DecodePushChunk(buf []byte) ([]PushFrame, []byte) {
	parts := bytes.Split(buf, frameSep)
	remainder := parts[len(parts)-1]

	var frames []PushFrame
	for _, block := range parts[:len(parts)-1] {
		if frame, ok := decodeBlock(block); ok {
			frames = append(frames, frame)
		}
	}
	return frames, remainder
}

// decodeBlock parses one complete frame block.
func decodeBlock(block []byte) (PushFrame, bool) {
	var frame PushFrame
	var dataLines [][]byte
	seen := false

	for _, line := range bytes.Split(block, lineSep) {
		switch {
		case len(line) == 0:
			continue
		case line[0] == ':':
			// comment line
			continue
		case bytes.HasPrefix(line, prefData):
			dataLines = append(dataLines, fieldValue(line, prefData))
			seen = true
		case bytes.HasPrefix(line, prefEvent):
			frame.Event = string(fieldValue(line, prefEvent))
			seen = true
		case bytes.HasPrefix(line, prefID):
			frame.ID = string(fieldValue(line, prefID))
			seen = true
		case bytes.HasPrefix(line, prefRetry):
			ms, err := strconv.ParseInt(string(fieldValue(line, prefRetry)), 10, 64)
			if err == nil {
				frame.Retry = time.Duration(ms) * time.Millisecond
				seen = true
			}
		}
	}

	if !seen {
		return PushFrame{}, false
	}

	if len(dataLines) > 0 {
		raw := bytes.Join(dataLines, lineSep)
		if json.Valid(raw) {
			frame.Data = json.RawMessage(append([]byte(nil), raw...))
		} else {
			frame.Message = string(raw)
		}
	}
	return frame, true
}

// fieldValue strips the prefix and one optional following space.
func fieldValue(line, prefix []byte) []byte {
	v := line[len(prefix):]
	if len(v) > 0 && v[0] == ' ' {
		v = v[1:]
	}
	return v
}

package wire

import (
	"github.com/pkg/errors"
)

// FrameType tags a websocket message.
type FrameType string

const (
	FrameRequest  FrameType = "Request"
	FrameResponse FrameType = "Response"
	FrameSignal   FrameType = "Signal"
)

// ErrInvalidFrame marks a websocket message that is not a valid frame.
var ErrInvalidFrame = errors.New("wire: invalid frame")

// Frame is a decoded websocket message. ID is zero for signals.
type Frame struct {
	Type FrameType `msgpack:"type"`
	ID   uint64    `msgpack:"id"`
	Data []byte    `msgpack:"data"`
}

type requestFrame struct {
	Type FrameType `msgpack:"type"`
	ID   uint64    `msgpack:"id"`
	Data []byte    `msgpack:"data"`
}

type signalFrame struct {
	Type FrameType `msgpack:"type"`
	Data []byte    `msgpack:"data"`
}

// EncodeRequestFrame wraps an encoded request with its correlation id.
func EncodeRequestFrame(id uint64, data []byte) ([]byte, error) {
	if id == 0 {
		return nil, errors.Wrap(ErrInvalidFrame, "request id must be non-zero")
	}
	return Marshal(requestFrame{Type: FrameRequest, ID: id, Data: data})
}

// EncodeResponseFrame wraps an encoded response with the id of the request
// it answers. A nil data slice encodes as nil.
func EncodeResponseFrame(id uint64, data []byte) ([]byte, error) {
	return Marshal(requestFrame{Type: FrameResponse, ID: id, Data: data})
}

// EncodeSignalFrame wraps an unsolicited signal payload.
func EncodeSignalFrame(data []byte) ([]byte, error) {
	return Marshal(signalFrame{Type: FrameSignal, Data: data})
}

// DecodeFrame parses one websocket message.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := Unmarshal(raw, &f); err != nil {
		return Frame{}, errors.Wrap(ErrInvalidFrame, err.Error())
	}
	switch f.Type {
	case FrameRequest, FrameResponse:
		if f.ID == 0 {
			return Frame{}, errors.Wrapf(ErrInvalidFrame, "%s frame missing id", f.Type)
		}
	case FrameSignal:
	default:
		return Frame{}, errors.Wrapf(ErrInvalidFrame, "unknown frame type %q", f.Type)
	}
	return f, nil
}

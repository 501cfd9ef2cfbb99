package wire

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrorTag is the response tag of a conductor failure.
const ErrorTag = "error"

// Conductor error kinds.
const (
	ErrorInternal                   = "internal_error"
	ErrorDeserialization            = "deserialization"
	ErrorDnaReadError               = "dna_read_error"
	ErrorRibosomeError              = "ribosome_error"
	ErrorActivateApp                = "activate_app"
	ErrorZomeCallUnauthorized       = "zome_call_unauthorized"
	ErrorCountersigningSessionError = "countersigning_session_error"
)

// ErrUnexpectedResponse marks a response whose tag does not answer the
// request that was sent.
var ErrUnexpectedResponse = errors.New("wire: unexpected response")

// RemoteError is a structured failure reported by the conductor.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("conductor error %s: %s", e.Type, e.Message)
}

type taggedData struct {
	Type string      `msgpack:"type"`
	Data interface{} `msgpack:"data"`
}

type taggedUnit struct {
	Type string `msgpack:"type"`
}

type taggedRaw struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// EncodeRequest tags payload with the method name. Unit methods ignore
// payload.
func EncodeRequest(m Method, payload interface{}) ([]byte, error) {
	if !m.Valid() {
		return nil, errors.Errorf("wire: unknown method %d", int(m))
	}
	if m.IsUnit() {
		return Marshal(taggedUnit{Type: m.String()})
	}
	return Marshal(taggedData{Type: m.String(), Data: payload})
}

// DecodeRequest splits an encoded request into its method and raw data.
func DecodeRequest(raw []byte) (Method, msgpack.RawMessage, error) {
	var t taggedRaw
	if err := Unmarshal(raw, &t); err != nil {
		return 0, nil, err
	}
	m, ok := MethodByName(t.Type)
	if !ok {
		return 0, nil, errors.Errorf("wire: unknown method %q", t.Type)
	}
	return m, t.Data, nil
}

// EncodeResponse builds a successful response for m. A nil data encodes a
// unit response.
func EncodeResponse(m Method, data interface{}) ([]byte, error) {
	if data == nil {
		return Marshal(taggedUnit{Type: m.ResponseTag()})
	}
	return Marshal(taggedData{Type: m.ResponseTag(), Data: data})
}

// EncodeErrorResponse builds a conductor failure response.
func EncodeErrorResponse(kind, message string) ([]byte, error) {
	return Marshal(taggedData{
		Type: ErrorTag,
		Data: taggedData{Type: kind, Data: message},
	})
}

// DecodeResponse checks that raw answers m and decodes its data into out.
// out may be nil for responses without a body. Conductor failures are
// returned as *RemoteError.
func DecodeResponse(m Method, raw []byte, out interface{}) error {
	var t taggedRaw
	if err := Unmarshal(raw, &t); err != nil {
		return err
	}
	if t.Type == ErrorTag {
		return decodeRemoteError(t.Data)
	}
	if t.Type != m.ResponseTag() {
		return errors.Wrapf(ErrUnexpectedResponse, "%s answered with %q", m, t.Type)
	}
	if out == nil || len(t.Data) == 0 {
		return nil
	}
	return Unmarshal(t.Data, out)
}

func decodeRemoteError(data msgpack.RawMessage) error {
	if len(data) == 0 {
		return &RemoteError{Type: ErrorInternal}
	}
	var body taggedData
	if err := Unmarshal(data, &body); err != nil {
		return &RemoteError{Type: ErrorInternal, Message: err.Error()}
	}
	re := &RemoteError{Type: body.Type}
	switch msg := body.Data.(type) {
	case nil:
	case string:
		re.Message = msg
	default:
		re.Message = fmt.Sprint(msg)
	}
	return re
}

// Package protocol implements the wire codec for the Privileged Helper
// Protocol (spec §4.9): one JSON request object per connection, one JSON
// response object, connection-per-request. Grounded on original_source's
// kftray-helper/src/messages.rs, expressed with the model types already
// defined for the request/response envelope (internal/model/helpermsg.go).
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/model"
)

// RequestTimeout bounds a single request/response round trip (spec §5).
const RequestTimeout = 10 * time.Second

// NewRequestID returns a fresh 128-bit request id, matching the original's
// UUIDv4 request correlation.
func NewRequestID() string {
	return uuid.NewString()
}

// NewRequest builds a HelperMessage ready to send, stamping a fresh request
// id and the current time.
func NewRequest(appID string, command model.HelperCommand) model.HelperMessage {
	return model.HelperMessage{
		RequestID: NewRequestID(),
		AppID:     appID,
		Command:   command,
		Timestamp: time.Now().Unix(),
	}
}

// WriteMessage frames and writes a single JSON value, terminated by a
// newline so a connection-per-request reader can read to EOF or to the
// delimiter interchangeably.
func WriteMessage(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

// ReadRequest reads one HelperMessage from a fresh connection.
func ReadRequest(r io.Reader) (model.HelperMessage, error) {
	var msg model.HelperMessage
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&msg); err != nil {
		return model.HelperMessage{}, fmt.Errorf("%w: %v", forwarderrors.ErrInvalidMessage, err)
	}
	return msg, nil
}

// ReadResponse reads one HelperResponse and verifies it answers wantRequestID.
func ReadResponse(r io.Reader, wantRequestID string) (model.HelperResponse, error) {
	var resp model.HelperResponse
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&resp); err != nil {
		return model.HelperResponse{}, fmt.Errorf("%w: %v", forwarderrors.ErrHelperTransport, err)
	}
	if resp.RequestID != wantRequestID {
		return model.HelperResponse{}, forwarderrors.ErrRequestIDMismatch
	}
	return resp, nil
}

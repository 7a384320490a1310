package handshake

import (
	"encoding/json"
	"fmt"
)

// Code is the outcome of a handshake
type Code int

const (
	CodeUnknown Code = iota
	CodeOK
	CodeError
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Response is the server's answer to a Request
type Response struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Policy is the server policy snapshot, forwarded as-is
	Policy json.RawMessage `json:"policy"`
}

// OK reports whether the client was admitted
func (r *Response) OK() bool {
	return r.Code == CodeOK
}

func encodeResponse(r Response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return b, nil
}

func decodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}

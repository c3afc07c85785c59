package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Status is the lifecycle marker carried by every Response.
type Status int

const (
	StatusProcessing Status = iota
	StatusOk
	StatusError
)

var statusNames = [...]string{
	StatusProcessing: "Processing",
	StatusOk:         "Ok",
	StatusError:      "Error",
}

func (s Status) String() string {
	if s < StatusProcessing || s > StatusError {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether s ends a connection exchange.
func (s Status) Terminal() bool {
	return s == StatusOk || s == StatusError
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s < StatusProcessing || s > StatusError {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return json.Marshal(statusNames[s])
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	for i, candidate := range statusNames {
		if candidate == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// Request is one client command. Only ID drives dispatch; Fields keeps every
// other top-level member as raw JSON.
type Request struct {
	ID     string                     `json:"id"`
	Fields map[string]json.RawMessage `json:"-"`
}

var (
	errMissingID   = errors.New(`request is missing "id"`)
	errNullID      = errors.New(`request "id" must be a string, not null`)
	errNotObject   = errors.New("request must be a JSON object")
	errInvalidUTF8 = errors.New("request is not valid UTF-8")
)

func (r *Request) UnmarshalJSON(data []byte) error {
	members, err := decodeMembers(data)
	if err != nil {
		return err
	}
	rawID, ok := members["id"]
	if !ok {
		return errMissingID
	}
	if bytes.Equal(bytes.TrimSpace(rawID), []byte("null")) {
		return errNullID
	}
	var id string
	if err := json.Unmarshal(rawID, &id); err != nil {
		return fmt.Errorf(`request "id" must be a string: %w`, err)
	}
	delete(members, "id")

	r.ID = id
	r.Fields = nil
	if len(members) > 0 {
		r.Fields = members
	}
	return nil
}

// decodeMembers splits a JSON object into its top-level members, rejecting
// a key that appears twice.
func decodeMembers(data []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	members := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in request", tok)
		}
		if _, dup := members[key]; dup {
			return nil, fmt.Errorf("duplicate field %q", key)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		members[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r Request) MarshalJSON() ([]byte, error) {
	members := make(map[string]json.RawMessage, len(r.Fields)+1)
	for k, v := range r.Fields {
		members[k] = v
	}
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	members["id"] = id
	return json.Marshal(members)
}

// DecodeRequest parses one request payload. The payload must be UTF-8 text
// holding exactly one JSON object.
func DecodeRequest(data []byte) (Request, error) {
	if !utf8.Valid(data) {
		return Request{}, newError(KindDecode, "decode request", errInvalidUTF8)
	}
	var req Request
	if err := json.Unmarshal(bytes.TrimSpace(data), &req); err != nil {
		return Request{}, newError(KindDecode, "decode request", err)
	}
	return req, nil
}

// Response is one frame payload sent back to the client.
type Response struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

func NewResponse(id string, status Status, message string) Response {
	return Response{ID: id, Status: status, Message: message}
}

// Encode serializes r without the frame terminator.
func (r Response) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, newError(KindEncode, "encode response", err)
	}
	return data, nil
}

// DecodeResponse parses one frame payload, tolerating a trailing terminator.
func DecodeResponse(data []byte) (Response, error) {
	data = bytes.TrimSuffix(data, []byte{FrameTerminator})
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, newError(KindDecode, "decode response", err)
	}
	return resp, nil
}

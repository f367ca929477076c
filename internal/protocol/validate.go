package protocol

import (
	"encoding/json"
	"fmt"
)

// field is a required payload field: its JSON name and value.
type field struct {
	name  string
	value string
}

// validators decode the payload of each client message type and return its
// required fields. A nil validator accepts any object payload.
var validators = map[string]func(json.RawMessage) ([]field, error){
	TypeProjectList:   nil,
	TypeProjectCreate: decode(func(p ProjectCreatePayload) []field { return []field{{"name", p.Name}} }),
	TypeProjectOpen:   decode(func(p ProjectOpenPayload) []field { return []field{{"name' or 'path", p.Name + p.Path}} }),
	TypeTreeList:      nil,
	TypeTreeCreate:    decode(func(p TreeCreatePayload) []field { return []field{{"name", p.Name}} }),
	TypeTreeMkdir:     decode(func(p TreeCreatePayload) []field { return []field{{"name", p.Name}} }),
	TypeTreeDelete:    decode(func(p TreePathPayload) []field { return []field{{"path", p.Path}} }),
	TypeTreeRename: decode(func(p TreeRenamePayload) []field {
		return []field{{"path", p.Path}, {"newName", p.NewName}}
	}),
	TypeTabOpen:   decode(func(p TabOpenPayload) []field { return []field{{"path", p.Path}} }),
	TypeTabEdit:   decode(func(p TabEditPayload) []field { return []field{{"filename", p.Filename}} }),
	TypeTabSave:   decode(func(p TabPayload) []field { return []field{{"filename", p.Filename}} }),
	TypeTabClose:  decode(func(p TabPayload) []field { return []field{{"filename", p.Filename}} }),
	TypeTabFocus:  decode(func(p TabPayload) []field { return []field{{"filename", p.Filename}} }),
	TypeJobRun:    nil,
	TypeJobDebug:  nil,
	TypeJobBuild:  nil,
	TypeJobCancel: decode(func(p JobCancelPayload) []field { return []field{{"jobId", p.JobID}} }),
}

func decode[T any](required func(T) []field) func(json.RawMessage) ([]field, error) {
	return func(raw json.RawMessage) ([]field, error) {
		var p T
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return required(p), nil
	}
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	validate, ok := validators[msg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	if validate == nil {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(msg.Payload, &obj); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		return &msg, nil
	}

	fields, err := validate(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	for _, f := range fields {
		if f.value == "" {
			return nil, fmt.Errorf("missing required field '%s' in %s payload", f.name, msg.Type)
		}
	}

	return &msg, nil
}

// Decode unmarshals the payload of a validated message into v.
func Decode(msg *Message, v interface{}) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	return nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

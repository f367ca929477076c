package protocol

import "simplic/internal/errs"

var kindCodes = map[errs.Kind]string{
	errs.NotFound:       "NOT_FOUND",
	errs.AlreadyExists:  "ALREADY_EXISTS",
	errs.NameCollision:  "NAME_COLLISION",
	errs.InvalidName:    "INVALID_NAME",
	errs.IOError:        "IO_ERROR",
	errs.SpawnError:     "SPAWN_ERROR",
	errs.BuildFailure:   "BUILD_FAILURE",
	errs.NotImplemented: "NOT_IMPLEMENTED",
	errs.ToolNotFound:   "TOOL_NOT_FOUND",
	errs.EntryMissing:   "ENTRY_MISSING",
	errs.Busy:           "BUSY",
	errs.Canceled:       "CANCELED",
}

// CodeOf returns the wire error code for err, or INTERNAL for unclassified
// errors.
func CodeOf(err error) string {
	if code, ok := kindCodes[errs.KindOf(err)]; ok {
		return code
	}
	return ErrInternal
}

// NewErrorReply creates the error message answering request id.
func NewErrorReply(id string, err error) (*Message, error) {
	msg, mErr := NewMessage(TypeError, ErrorPayload{
		Code:    CodeOf(err),
		Message: errs.Notice(err),
		Output:  string(errs.OutputOf(err)),
	})
	if mErr != nil {
		return nil, mErr
	}
	msg.ID = id
	return msg, nil
}

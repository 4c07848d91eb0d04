package access

import (
	"errors"
	"fmt"
)

// Code identifies why a room-scoped operation was refused. Handlers map
// codes to HTTP statuses; the message router maps them to error frames.
type Code string

const (
	CodeNotMember       Code = "NOT_MEMBER"
	CodeForbidden       Code = "FORBIDDEN"
	CodeInvalidPassword Code = "INVALID_PASSWORD"
)

// Error is terminal for the operation that raised it: surfaced to the
// caller immediately, never retried.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("access denied (%s): %s", e.Code, e.Detail)
}

func denied(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// AsError unwraps an access Error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrInviteNotFound = errors.New("invite not found")
	ErrUserNotFound   = errors.New("user not found")
)

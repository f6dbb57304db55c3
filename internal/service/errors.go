package service

import (
	"Horizon/internal/chat"
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid            = errors.New("invalid parameters")
	ErrAdminNotFound           = errors.New("admin account not found")
	ErrAdminDisabled           = errors.New("admin account is disabled")
	ErrPasswordIncorrect       = errors.New("incorrect username or password")
	ErrMissingLoginCredentials = errors.New("missing login credentials")
	ErrTranscriptEmpty         = errors.New("chat session has no messages")
	ErrSearchUnavailable       = errors.New("message search is not available")
	UnauthorizedError          = errors.New("unauthorized")
	UnExpectedError            = errors.New("unexpected error, please try again later")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:            BadRequest,
	ErrAdminNotFound:           NotFound,
	ErrAdminDisabled:           Unauthorized,
	ErrPasswordIncorrect:       Unauthorized,
	ErrMissingLoginCredentials: Unauthorized,
	ErrTranscriptEmpty:         BadRequest,
	ErrSearchUnavailable:       InternalServerError,
	UnauthorizedError:          Unauthorized,
	UnExpectedError:            InternalServerError,
	chat.ErrVisitorIDRequired:  BadRequest,
	chat.ErrSessionNotFound:    NotFound,
	chat.ErrSessionClosed:      BadRequest,
}

// LookupCode 按 errors.Is 匹配业务码，兼容被包装过的错误
func LookupCode(err error) (int, error, bool) {
	if code, ok := ErrorMap[err]; ok {
		return code, err, true
	}
	for sentinel, code := range ErrorMap {
		if errors.Is(err, sentinel) {
			return code, sentinel, true
		}
	}
	return 0, nil, false
}

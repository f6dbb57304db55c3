package chat

import "errors"

var (
	ErrVisitorIDRequired = errors.New("visitor id is required")
	ErrSessionNotFound   = errors.New("chat session not found")
	ErrSessionClosed     = errors.New("chat session is closed")
)

// 展示给前端的错误状态，不区分网络错误和权限错误
const (
	errMsgLoadSession   = "Failed to load chat session"
	errMsgStartSession  = "Failed to start chat. Please try again."
	errMsgSend          = "Failed to send message. Please try again."
	errMsgUpdateDetails = "Failed to save your details. Please try again."
	errMsgLoadSessions  = "Failed to load chat sessions"
	errMsgLoadMessages  = "Failed to load messages"
	errMsgCloseSession  = "Failed to close chat session"
)

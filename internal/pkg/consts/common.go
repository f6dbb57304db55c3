package consts

const (
	ChatRoleAdmin = "ADMIN"
)

const (
	DefaultAdminName   = "Admin"
	TranscriptMimeType = "text/plain; charset=utf-8"
)

const (
	ChatEventMessage = "message"
	ChatEventSession = "session"
)

package consts

const (
	ChatMessageChannel    = "chat:message:"
	ChatAllMessageChannel = "chat:message"
	ChatSessionChannel    = "chat:session"
	ChatClientStorageKey  = "chat:client:"
)

const (
	ChatSessionLock = "chat:session:lock:"
	ChatArchiveLock = "chat:archive:lock"
)

// TokenRevokedKey 已登出 token 的签名
const TokenRevokedKey = "auth:revoked:"

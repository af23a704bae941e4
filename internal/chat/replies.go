package chat

import "fmt"

// ServerSender 为服务器自身回复中使用的发送方名称。
const ServerSender = "Server"

// RosterSeparator 为行协议下在线用户列表的分隔符。
const RosterSeparator = ", "

// 客户端可见的回复文本，逐字节保持稳定，客户端可能依赖它们做匹配。
const (
	LoginSuccessText = "Login successful. You can now start chatting with other clients.\n" +
		"Use the 'list' command to see a list of all logged in clients.\n" +
		"Use the 'message:<name-to>:<the-message>' command to send a message to a particular client."
	NotAuthenticatedText = "You must first login to be able to interact with the server.\n" +
		"Command to login: login:<username>"
	LogoutText          = "You have successfully logged out from the chat."
	InvalidCommandText  = "Invalid command"
	InvalidUsernameText = "Username must be at least 6 characters long."

	usernameTakenFormat        = "Username %s is taken. Please choose a different one."
	recipientNotFoundFormat    = "%s is not logged in."
	alreadyAuthenticatedFormat = "You are already logged in as %s."
)

// UsernameTakenText 返回用户名被占用时的回复。
func UsernameTakenText(username string) string {
	return fmt.Sprintf(usernameTakenFormat, username)
}

// RecipientNotFoundText 返回收件人不在线时的回复。
func RecipientNotFoundText(username string) string {
	return fmt.Sprintf(recipientNotFoundFormat, username)
}

// AlreadyAuthenticatedText 返回重复登录时的回复。
func AlreadyAuthenticatedText(username string) string {
	return fmt.Sprintf(alreadyAuthenticatedFormat, username)
}

package recipes

import (
	"strconv"
	"time"
)

// Key prefixes. Other code reads these keys directly, so they are a stable
// contract; a new recipe must pick a prefix not listed here.
const (
	PrefixPresence   = "user:online:"
	PrefixSocketUser = "socket:user:"
	PrefixUserSocket = "user:socket:"
	PrefixMessages   = "chat:messages:"
	PrefixChatMeta   = "chat:meta:"
	PrefixUserChats  = "user:chats:"
	PrefixUnread     = "unread:"
	PrefixTyping     = "typing:"
	PrefixUserLists  = "list:user:"
	PrefixListDetail = "list:detail:"
)

// PresenceChannel carries presence changes to other instances.
const PresenceChannel = "presence"

func id(n int64) string { return strconv.FormatInt(n, 10) }

func PresenceKey(userID int64) string { return PrefixPresence + id(userID) }
func SocketUserKey(socketID string) string { return PrefixSocketUser + socketID }
func UserSocketKey(userID int64) string { return PrefixUserSocket + id(userID) }
func MessagesKey(chatID int64) string { return PrefixMessages + id(chatID) }
func ChatMetaKey(chatID int64) string { return PrefixChatMeta + id(chatID) }
func UserChatsKey(userID int64) string { return PrefixUserChats + id(userID) }
func TypingKey(chatID int64) string { return PrefixTyping + id(chatID) }
func UserListsKey(userID int64) string { return PrefixUserLists + id(userID) }
func ListDetailKey(listID int64) string { return PrefixListDetail + id(listID) }

func UnreadKey(userID, chatID int64) string {
	return PrefixUnread + id(userID) + ":" + id(chatID)
}

// TTLs holds the lifetime of every recipe key. TTLs are a safety net;
// mutations invalidate explicitly.
type TTLs struct {
	Presence  time.Duration
	Socket    time.Duration
	Messages  time.Duration
	ChatMeta  time.Duration
	UserChats time.Duration
	Unread    time.Duration
	Typing    time.Duration
	UserLists time.Duration
	Detail    time.Duration
}

// DefaultTTLs returns the production lifetimes. The socket mapping lives
// twice as long as presence so a heartbeat that arrives late still finds it.
func DefaultTTLs() TTLs {
	return TTLs{
		Presence:  60 * time.Second,
		Socket:    120 * time.Second,
		Messages:  5 * time.Minute,
		ChatMeta:  10 * time.Minute,
		UserChats: 5 * time.Minute,
		Unread:    time.Hour,
		Typing:    5 * time.Second,
		UserLists: 5 * time.Minute,
		Detail:    5 * time.Minute,
	}
}

func (t *TTLs) fill() {
	d := DefaultTTLs()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&t.Presence, d.Presence)
	if t.Socket <= 0 {
		t.Socket = 2 * t.Presence
	}
	fill(&t.Messages, d.Messages)
	fill(&t.ChatMeta, d.ChatMeta)
	fill(&t.UserChats, d.UserChats)
	fill(&t.Unread, d.Unread)
	fill(&t.Typing, d.Typing)
	fill(&t.UserLists, d.UserLists)
	fill(&t.Detail, d.Detail)
}

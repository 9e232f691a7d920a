package recipes

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/cache"
)

// Chats caches chat message pages, chat metadata and per-user chat lists,
// and keeps unread counters and typing sets.
type Chats struct {
	f     *cache.Facade
	views *Views
	ttl   TTLs
	log   *zap.Logger

	MessagesView View
	MetaView     View
	ChatListView View
}

func newChats(f *cache.Facade, views *Views, ttl TTLs, log *zap.Logger) *Chats {
	return &Chats{
		f:            f,
		views:        views,
		ttl:          ttl,
		log:          log,
		MessagesView: View{Name: "chat_messages", Key: MessagesKey, TTL: ttl.Messages},
		MetaView:     View{Name: "chat_meta", Key: ChatMetaKey, TTL: ttl.ChatMeta},
		ChatListView: View{Name: "user_chats", Key: UserChatsKey, TTL: ttl.UserChats},
	}
}

// Messages decodes the cached first page of messages of a chat into dst.
func (c *Chats) Messages(ctx context.Context, chatID int64, dst any) (bool, error) {
	return c.views.Get(ctx, c.MessagesView, chatID, dst)
}

// SetMessages caches the first page of messages of a chat.
func (c *Chats) SetMessages(ctx context.Context, chatID int64, page any) error {
	return c.views.Set(ctx, c.MessagesView, chatID, page)
}

// InvalidateMessages drops the cached first page of a chat.
func (c *Chats) InvalidateMessages(ctx context.Context, chatID int64) {
	c.views.Invalidate(ctx, c.MessagesView, chatID)
}

// Meta decodes the cached chat metadata into dst.
func (c *Chats) Meta(ctx context.Context, chatID int64, dst any) (bool, error) {
	return c.views.Get(ctx, c.MetaView, chatID, dst)
}

// SetMeta caches the chat metadata.
func (c *Chats) SetMeta(ctx context.Context, chatID int64, meta any) error {
	return c.views.Set(ctx, c.MetaView, chatID, meta)
}

// InvalidateMeta drops the cached chat metadata.
func (c *Chats) InvalidateMeta(ctx context.Context, chatID int64) {
	c.views.Invalidate(ctx, c.MetaView, chatID)
}

// ChatList decodes the cached chat list of a user into dst.
func (c *Chats) ChatList(ctx context.Context, userID int64, dst any) (bool, error) {
	return c.views.Get(ctx, c.ChatListView, userID, dst)
}

// SetChatList caches the chat list of a user.
func (c *Chats) SetChatList(ctx context.Context, userID int64, list any) error {
	return c.views.Set(ctx, c.ChatListView, userID, list)
}

// InvalidateChatLists drops the cached chat lists of the given users.
func (c *Chats) InvalidateChatLists(ctx context.Context, userIDs ...int64) {
	c.views.Invalidate(ctx, c.ChatListView, userIDs...)
}

// IncrementUnread adds one unread message for the user in the chat. The TTL
// is attached on the first increment only.
func (c *Chats) IncrementUnread(ctx context.Context, userID, chatID int64) (int64, error) {
	key := UnreadKey(userID, chatID)
	n, err := c.f.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if _, err := c.f.Expire(ctx, key, c.ttl.Unread); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Unread returns the cached unread count, zero when absent.
func (c *Chats) Unread(ctx context.Context, userID, chatID int64) (int64, error) {
	raw, ok, err := c.f.Get(ctx, UnreadKey(userID, chatID))
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Join(cache.ErrNotInteger, err)
	}
	return n, nil
}

// ClearUnread removes the unread counter.
func (c *Chats) ClearUnread(ctx context.Context, userID, chatID int64) error {
	_, err := c.f.Del(ctx, UnreadKey(userID, chatID))
	return err
}

// StartTyping adds the user to the typing set of the chat and restarts its
// short expiry.
func (c *Chats) StartTyping(ctx context.Context, chatID, userID int64) error {
	key := TypingKey(chatID)
	if _, err := c.f.SAdd(ctx, key, id(userID)); err != nil {
		return err
	}
	_, err := c.f.Expire(ctx, key, c.ttl.Typing)
	return err
}

// StopTyping removes the user from the typing set.
func (c *Chats) StopTyping(ctx context.Context, chatID, userID int64) error {
	_, err := c.f.SRem(ctx, TypingKey(chatID), id(userID))
	return err
}

// Typing returns the users currently typing in the chat, sorted.
func (c *Chats) Typing(ctx context.Context, chatID int64) ([]int64, error) {
	members, err := c.f.SMembers(ctx, TypingKey(chatID))
	if err != nil {
		return nil, err
	}
	users := make([]int64, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, n)
	}
	slices.Sort(users)
	return users, nil
}

// MessageSent runs the cache bookkeeping for a new message: the first page
// and every participant's chat list are invalidated, every participant but
// the sender gets an unread increment and the sender stops typing.
func (c *Chats) MessageSent(ctx context.Context, chatID, senderID int64, participants []int64) {
	c.InvalidateMessages(ctx, chatID)
	c.InvalidateChatLists(ctx, participants...)
	for _, u := range participants {
		if u == senderID {
			continue
		}
		if _, err := c.IncrementUnread(ctx, u, chatID); err != nil {
			c.log.Debug("unread increment failed", zap.Int64("user", u), zap.Int64("chat", chatID), zap.Error(err))
		}
	}
	if err := c.StopTyping(ctx, chatID, senderID); err != nil {
		c.log.Debug("stop typing failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// ChatCreated invalidates the chat lists of every participant.
func (c *Chats) ChatCreated(ctx context.Context, participants []int64) {
	c.InvalidateChatLists(ctx, participants...)
}

// ParticipantsChanged invalidates the chat metadata and the chat lists of
// everyone affected.
func (c *Chats) ParticipantsChanged(ctx context.Context, chatID int64, participants []int64) {
	c.InvalidateMeta(ctx, chatID)
	c.InvalidateChatLists(ctx, participants...)
}

// ReadReceipt clears the unread counter of the reader.
func (c *Chats) ReadReceipt(ctx context.Context, userID, chatID int64) {
	if err := c.ClearUnread(ctx, userID, chatID); err != nil {
		c.log.Debug("unread clear failed", zap.Int64("user", userID), zap.Int64("chat", chatID), zap.Error(err))
	}
}

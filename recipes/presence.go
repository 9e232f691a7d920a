package recipes

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/cache"
)

// Record is the cached presence of one user. A missing record means offline.
// LastSeen is when SetOnline wrote the record; heartbeats only extend its TTL.
type Record struct {
	UserID   int64     `json:"userId" msgpack:"userId" cbor:"userId"`
	Online   bool      `json:"online" msgpack:"online" cbor:"online"`
	SocketID string    `json:"socketId,omitempty" msgpack:"socketId,omitempty" cbor:"socketId,omitempty"`
	LastSeen time.Time `json:"lastSeen" msgpack:"lastSeen" cbor:"lastSeen"`
}

// Event is published on PresenceChannel whenever a user goes on- or offline.
type Event struct {
	UserID int64 `json:"userId" msgpack:"userId" cbor:"userId"`
	Online bool  `json:"online" msgpack:"online" cbor:"online"`
}

// Presence tracks which users are connected and through which socket.
type Presence struct {
	f       *cache.Facade
	ttl     TTLs
	log     *zap.Logger
	nowFunc func() time.Time
}

// SetOnline records the user as online on socketID and writes both sides of
// the socket mapping. An empty socketID only writes the presence record.
func (p *Presence) SetOnline(ctx context.Context, userID int64, socketID string) error {
	rec := Record{UserID: userID, Online: true, SocketID: socketID, LastSeen: p.nowFunc().UTC()}
	if err := p.f.SetValue(ctx, PresenceKey(userID), rec, p.ttl.Presence); err != nil {
		return err
	}
	if socketID != "" {
		if err := p.f.Set(ctx, SocketUserKey(socketID), []byte(id(userID)), p.ttl.Socket); err != nil {
			return err
		}
		if err := p.f.Set(ctx, UserSocketKey(userID), []byte(socketID), p.ttl.Socket); err != nil {
			return err
		}
	}
	p.publish(ctx, userID, true)
	return nil
}

// Heartbeat extends the presence record and the socket mapping. It reports
// false when the user has no live record, in which case the caller should
// call SetOnline again. The record is only re-timed, never rewritten, so a
// heartbeat racing SetOffline cannot bring the user back online.
func (p *Presence) Heartbeat(ctx context.Context, userID int64) (bool, error) {
	ok, err := p.f.Expire(ctx, PresenceKey(userID), p.ttl.Presence)
	if err != nil || !ok {
		return false, err
	}
	sid, hasSocket, err := p.SocketForUser(ctx, userID)
	if err != nil || !hasSocket {
		return true, err
	}
	if _, err := p.f.Expire(ctx, UserSocketKey(userID), p.ttl.Socket); err != nil {
		return true, err
	}
	if _, err := p.f.Expire(ctx, SocketUserKey(sid), p.ttl.Socket); err != nil {
		return true, err
	}
	return true, nil
}

// SetOffline removes the presence record and both sides of the socket
// mapping together.
func (p *Presence) SetOffline(ctx context.Context, userID int64) error {
	keys := []string{PresenceKey(userID), UserSocketKey(userID)}
	sid, ok, err := p.SocketForUser(ctx, userID)
	if err != nil {
		p.log.Debug("socket lookup failed", zap.Int64("user", userID), zap.Error(err))
	}
	if ok {
		keys = append(keys, SocketUserKey(sid))
	}
	if _, err := p.f.Del(ctx, keys...); err != nil {
		return err
	}
	p.publish(ctx, userID, false)
	return nil
}

// Disconnect handles a closed socket. The user goes offline only when
// socketID is still their current socket; a user who already reconnected on
// another socket stays online. It returns the user the socket belonged to.
func (p *Presence) Disconnect(ctx context.Context, socketID string) (userID int64, offline bool, err error) {
	userID, ok, err := p.UserForSocket(ctx, socketID)
	if err != nil || !ok {
		return 0, false, err
	}
	current, ok, err := p.SocketForUser(ctx, userID)
	if err != nil {
		return userID, false, err
	}
	if ok && current != socketID {
		_, err := p.f.Del(ctx, SocketUserKey(socketID))
		return userID, false, err
	}
	return userID, true, p.SetOffline(ctx, userID)
}

// IsOnline reports whether the user has a live presence record.
func (p *Presence) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return p.f.Exists(ctx, PresenceKey(userID))
}

// Get returns the presence record of the user.
func (p *Presence) Get(ctx context.Context, userID int64) (Record, bool, error) {
	var rec Record
	ok, err := p.f.GetValue(ctx, PresenceKey(userID), &rec)
	if err != nil || !ok {
		return Record{}, false, err
	}
	return rec, true, nil
}

// OnlineAmong returns the subset of userIDs that are online, in input
// order.
func (p *Presence) OnlineAmong(ctx context.Context, userIDs []int64) ([]int64, error) {
	online := make([]int64, 0, len(userIDs))
	for _, u := range userIDs {
		ok, err := p.IsOnline(ctx, u)
		if err != nil {
			return nil, err
		}
		if ok {
			online = append(online, u)
		}
	}
	return online, nil
}

// UserForSocket resolves a socket to its user.
func (p *Presence) UserForSocket(ctx context.Context, socketID string) (int64, bool, error) {
	raw, ok, err := p.f.Get(ctx, SocketUserKey(socketID))
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// SocketForUser resolves a user to their current socket.
func (p *Presence) SocketForUser(ctx context.Context, userID int64) (string, bool, error) {
	raw, ok, err := p.f.Get(ctx, UserSocketKey(userID))
	if err != nil || !ok {
		return "", false, err
	}
	return string(raw), true, nil
}

func (p *Presence) publish(ctx context.Context, userID int64, online bool) {
	if err := p.f.PublishValue(ctx, PresenceChannel, Event{UserID: userID, Online: online}); err != nil {
		p.log.Debug("presence publish failed", zap.Int64("user", userID), zap.Error(err))
	}
}

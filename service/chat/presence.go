package chat

import (
	"context"
	"sort"
	"time"

	"QChat/logger"
	"QChat/service/storage"
)

// Broadcaster pushes the full online-user set to every live connection after
// each presence-changing registry mutation. Always the complete set, never a
// diff: a late-joining or recovering connection self-heals on the next
// broadcast without a reconciliation protocol.
type Broadcaster struct {
	reg    *Registry
	nodeID string
	ttl    time.Duration
}

func NewBroadcaster(reg *Registry, nodeID string, presenceTTL time.Duration) *Broadcaster {
	return &Broadcaster{reg: reg, nodeID: nodeID, ttl: presenceTTL}
}

// OnPresenceChange is the registry's PresenceNotifier. It refreshes the redis
// mirror best-effort, then rebroadcasts the full set.
func (b *Broadcaster) OnPresenceChange(userID string, online bool) {
	if storage.Ready() {
		go b.mirror(userID, online)
	}
	b.BroadcastPresence()
}

// BroadcastPresence sends the current online set to everyone, fire-and-forget.
// Individual delivery failures are not retried; a dead connection prunes
// itself on its own disconnect.
func (b *Broadcaster) BroadcastPresence() {
	ids := b.reg.AllOnlineUserIDs()
	sort.Strings(ids)
	payload, err := EncodeEvent(EventOnlineUsers, ids)
	if err != nil {
		logger.Errorf("[presence] encode online set: %v", err)
		return
	}
	for _, c := range b.reg.AllConns() {
		c.Push(payload)
	}
}

func (b *Broadcaster) mirror(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var err error
	if online {
		err = storage.PresenceOnline(ctx, userID, b.nodeID, b.ttl)
	} else {
		err = storage.PresenceOffline(ctx, userID)
	}
	if err != nil {
		logger.Warnf("[presence] mirror update user=%s online=%v err=%v", userID, online, err)
	}
}

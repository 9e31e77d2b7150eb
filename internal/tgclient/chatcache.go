package tgclient

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/telecopilot/internal/model"
)

// chatCache is a mapping from chat id to the hydrated chat handle,
// loaded once from a dialog scan and refilled opportunistically.
// Concurrent scans are serialized by a 1-permit golang.org/x/sync/semaphore.
type chatCache struct {
	byID     map[int64]model.Chat
	scanSem  *semaphore.Weighted
	mu       sync.RWMutex
	loaded   bool
}

func newChatCache() *chatCache {
	return &chatCache{
		byID:    make(map[int64]model.Chat),
		scanSem: semaphore.NewWeighted(1),
	}
}

func (c *chatCache) get(id int64) (model.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.byID[id]
	return chat, ok
}

func (c *chatCache) put(chat model.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[chat.ID] = chat
}

func (c *chatCache) isLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *chatCache) markLoaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
}

// invalidate clears both the map and the loaded flag — called on logout
//.
func (c *chatCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[int64]model.Chat)
	c.loaded = false
}

// withScanPermit serializes concurrent dialog scans through the 1-permit
// semaphore.
func (c *chatCache) withScanPermit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.scanSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.scanSem.Release(1)
	return fn(ctx)
}

package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Invalidator fans cache invalidations out to other instances.
type Invalidator interface {
	Publish(ctx context.Context, key string) error
	Subscribe(ctx context.Context, fn func(key string)) error
}

const (
	userKeyPrefix  = "user:"
	guildKeyPrefix = "guild:"
)

// CachedStore is a read-through cache in front of a PreferenceStore.
// Misses are cached too, so unknown members cost one query per TTL.
type CachedStore struct {
	PreferenceStore
	users  *expirable.LRU[string, *UserPrefs]
	guilds *expirable.LRU[string, *GuildSettings]
	inv    Invalidator
}

// NewCachedStore wraps s with an LRU of size entries per kind. inv may be nil.
func NewCachedStore(s PreferenceStore, size int, ttl time.Duration, inv Invalidator) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		PreferenceStore: s,
		users:           expirable.NewLRU[string, *UserPrefs](size, nil, ttl),
		guilds:          expirable.NewLRU[string, *GuildSettings](size, nil, ttl),
		inv:             inv,
	}
}

func (c *CachedStore) GetUser(ctx context.Context, userID string) (*UserPrefs, error) {
	if u, ok := c.users.Get(userID); ok {
		if u == nil {
			return nil, ErrNotFound
		}
		cp := *u
		return &cp, nil
	}
	u, err := c.PreferenceStore.GetUser(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.users.Add(userID, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	cp := *u
	c.users.Add(userID, &cp)
	return u, nil
}

func (c *CachedStore) SaveUser(ctx context.Context, u *UserPrefs) error {
	if err := c.PreferenceStore.SaveUser(ctx, u); err != nil {
		return err
	}
	c.invalidate(ctx, userKeyPrefix+u.UserID)
	return nil
}

func (c *CachedStore) GetGuild(ctx context.Context, guildID string) (*GuildSettings, error) {
	if g, ok := c.guilds.Get(guildID); ok {
		if g == nil {
			return nil, ErrNotFound
		}
		return cloneGuild(g), nil
	}
	g, err := c.PreferenceStore.GetGuild(ctx, guildID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.guilds.Add(guildID, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	c.guilds.Add(guildID, cloneGuild(g))
	return g, nil
}

func (c *CachedStore) SaveGuild(ctx context.Context, g *GuildSettings) error {
	if err := c.PreferenceStore.SaveGuild(ctx, g); err != nil {
		return err
	}
	c.invalidate(ctx, guildKeyPrefix+g.GuildID)
	return nil
}

// Listen applies invalidations published by other instances until ctx is done.
func (c *CachedStore) Listen(ctx context.Context) error {
	if c.inv == nil {
		return nil
	}
	return c.inv.Subscribe(ctx, c.Invalidate)
}

// Invalidate drops a cached entry by key ("user:<id>" or "guild:<id>").
func (c *CachedStore) Invalidate(key string) {
	switch {
	case strings.HasPrefix(key, userKeyPrefix):
		c.users.Remove(strings.TrimPrefix(key, userKeyPrefix))
	case strings.HasPrefix(key, guildKeyPrefix):
		c.guilds.Remove(strings.TrimPrefix(key, guildKeyPrefix))
	}
}

func (c *CachedStore) invalidate(ctx context.Context, key string) {
	c.Invalidate(key)
	if c.inv == nil {
		return
	}
	if err := c.inv.Publish(ctx, key); err != nil {
		slog.Warn("store: cache invalidation publish failed", "key", key, "error", err)
	}
}

func cloneGuild(g *GuildSettings) *GuildSettings {
	cp := *g
	cp.AllowedVoiceIDs = append([]string(nil), g.AllowedVoiceIDs...)
	cp.TextChannelIDs = append([]string(nil), g.TextChannelIDs...)
	return &cp
}

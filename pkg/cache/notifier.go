// Package cache signals that a reader's cached views are stale. Each scope
// has a version counter per reader; readers of the cache compare versions
// and subscribers receive the bumped scope on a pub/sub channel.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Scope names one family of cached views.
type Scope string

const (
	ScopeLibrary   Scope = "library"
	ScopeNotebooks Scope = "notebooks"
	ScopeTags      Scope = "tags"
	ScopeNotes     Scope = "notes"
)

// Channel is the pub/sub channel carrying "<scope>:<readerId>" messages.
const Channel = "readshelf:cache"

// Notifier is called after a mutation completes.
type Notifier interface {
	LibraryCacheUpdate(ctx context.Context, readerID string) error
	NotebooksCacheUpdate(ctx context.Context, readerID string) error
	TagsCacheUpdate(ctx context.Context, readerID string) error
	NotesCacheUpdate(ctx context.Context, readerID string) error
}

// Nop ignores every update.
type Nop struct{}

func (Nop) LibraryCacheUpdate(context.Context, string) error   { return nil }
func (Nop) NotebooksCacheUpdate(context.Context, string) error { return nil }
func (Nop) TagsCacheUpdate(context.Context, string) error      { return nil }
func (Nop) NotesCacheUpdate(context.Context, string) error     { return nil }

type RedisNotifier struct {
	client *redis.Client
	prefix string
}

type RedisNotifierConfig struct {
	Addr     string
	Password string
	// Prefix defaults to "readshelf:cache".
	Prefix string
}

func NewRedisNotifier(cfg RedisNotifierConfig) (*RedisNotifier, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return NewRedisNotifierWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}), cfg.Prefix), nil
}

// NewRedisNotifierWithClient shares an existing client.
func NewRedisNotifierWithClient(client *redis.Client, prefix string) *RedisNotifier {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = Channel
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) Close() error { return n.client.Close() }

func (n *RedisNotifier) LibraryCacheUpdate(ctx context.Context, readerID string) error {
	return n.bump(ctx, ScopeLibrary, readerID)
}

func (n *RedisNotifier) NotebooksCacheUpdate(ctx context.Context, readerID string) error {
	return n.bump(ctx, ScopeNotebooks, readerID)
}

func (n *RedisNotifier) TagsCacheUpdate(ctx context.Context, readerID string) error {
	return n.bump(ctx, ScopeTags, readerID)
}

func (n *RedisNotifier) NotesCacheUpdate(ctx context.Context, readerID string) error {
	return n.bump(ctx, ScopeNotes, readerID)
}

// Version returns the current counter for scope, zero before the first bump.
func (n *RedisNotifier) Version(ctx context.Context, scope Scope, readerID string) (int64, error) {
	v, err := n.client.Get(ctx, n.key(scope, readerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (n *RedisNotifier) bump(ctx context.Context, scope Scope, readerID string) error {
	if strings.TrimSpace(readerID) == "" {
		return errors.New("cache: reader id required")
	}
	pipe := n.client.TxPipeline()
	pipe.Incr(ctx, n.key(scope, readerID))
	pipe.Publish(ctx, n.prefix, string(scope)+":"+readerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: bump %s: %w", scope, err)
	}
	return nil
}

func (n *RedisNotifier) key(scope Scope, readerID string) string {
	return n.prefix + ":" + string(scope) + ":" + readerID
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*RedisNotifier)(nil)
)

package grouping

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"boletodesk/internal/backend"
	"boletodesk/internal/fileutil"
	"boletodesk/internal/logging"
	"boletodesk/internal/textutil"
)

const (
	dataSuffix = ".bin"
	typeSuffix = ".type"
)

// FetchFunc downloads one binary.
type FetchFunc func(ctx context.Context) (*backend.Binary, error)

// Cache holds document binaries for one session.
type Cache struct {
	items  *gocache.Cache
	flight singleflight.Group
	dir    string
	logger *slog.Logger
}

// Key builds the cache key of a document binary.
func Key(kind backend.DocumentKind, id string) string {
	return string(kind) + "-" + id
}

// NewCache creates a cache mirrored under dir. An empty dir keeps the cache
// in memory only.
func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		items:  gocache.New(gocache.NoExpiration, 0),
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "preview_cache"),
	}
}

// Get returns the binary stored under key, calling fetch only when neither
// memory nor the disk mirror has it. Concurrent calls for the same key share
// one fetch. Failed fetches are not cached.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) (*backend.Binary, error) {
	if key == "" {
		return nil, errors.New("preview cache key is empty")
	}
	if bin, ok := c.lookup(key); ok {
		return bin, nil
	}

	value, err, shared := c.flight.Do(key, func() (any, error) {
		if bin, ok := c.lookup(key); ok {
			return bin, nil
		}
		bin, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if bin == nil {
			return nil, fmt.Errorf("fetch %s: empty response", key)
		}
		c.items.Set(key, bin, gocache.NoExpiration)
		if err := c.persist(key, bin); err != nil {
			c.logger.Warn("preview mirror write failed",
				logging.String(logging.FieldEventType, "preview_mirror_failed"),
				logging.String("key", key),
				logging.Error(err))
		}
		return bin, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("preview fetch shared", logging.String("key", key))
	}
	return value.(*backend.Binary), nil
}

// Len returns the number of binaries held in memory.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Dir returns the disk mirror location.
func (c *Cache) Dir() string {
	return c.dir
}

// Purge drops every entry and removes the disk mirror.
func (c *Cache) Purge() error {
	c.items.Flush()
	if c.dir == "" {
		return nil
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("remove preview mirror: %w", err)
	}
	return nil
}

func (c *Cache) lookup(key string) (*backend.Binary, bool) {
	if value, ok := c.items.Get(key); ok {
		return value.(*backend.Binary), true
	}
	bin, err := c.load(key)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("preview mirror read failed", logging.String("key", key), logging.Error(err))
		}
		return nil, false
	}
	c.items.Set(key, bin, gocache.NoExpiration)
	return bin, true
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, textutil.SanitizeFileName(key))
}

func (c *Cache) load(key string) (*backend.Binary, error) {
	if c.dir == "" {
		return nil, fs.ErrNotExist
	}
	base := c.path(key)
	data, err := os.ReadFile(base + dataSuffix)
	if err != nil {
		return nil, err
	}
	contentType, err := os.ReadFile(base + typeSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &backend.Binary{Data: data, ContentType: strings.TrimSpace(string(contentType))}, nil
}

// persist writes the sidecar first so a visible data file always has its
// content type.
func (c *Cache) persist(key string, bin *backend.Binary) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create preview mirror: %w", err)
	}
	base := c.path(key)
	if err := fileutil.WriteAtomic(base+typeSuffix, []byte(bin.ContentType), 0o644); err != nil {
		return err
	}
	return fileutil.WriteAtomic(base+dataSuffix, bin.Data, 0o644)
}

package boundary

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
)

// ErrSyncFailed wraps every catalog sync failure. The previous catalog is
// always retained when it is returned.
var ErrSyncFailed = errors.New("boundary sync failed")

// Source fetches the full boundary definition set.
type Source interface {
	FetchBoundaries(ctx context.Context) ([]Boundary, error)
}

// Snapshot is a read-only view of one catalog version, keyed by
// parameter. Callers must not modify it.
type Snapshot map[string]Boundary

// Summary describes the loaded catalog for session registration.
type Summary struct {
	Count  int      `json:"count"`
	Names  []string `json:"names"`
	Digest string   `json:"digest"`
}

// Catalog holds the current boundary set. It is replaced wholesale;
// a sync never merges into the existing set.
type Catalog struct {
	mu      sync.RWMutex
	byKey   Snapshot
	ordered []Boundary
	digest  string
	logger  *slog.Logger
}

// NewCatalog returns an empty catalog. Undeclared parameters pass.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		byKey:  Snapshot{},
		digest: digestOf(nil),
		logger: logger,
	}
}

// Replace validates defs and installs them as the new catalog. If any
// definition is invalid or two definitions share a parameter key, the
// catalog is left unchanged.
func (c *Catalog) Replace(defs []Boundary) error {
	byKey := make(Snapshot, len(defs))
	ordered := make([]Boundary, 0, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
		key := d.Key()
		if prev, dup := byKey[key]; dup {
			return fmt.Errorf("boundary: parameter %q declared by both %q and %q", key, prev.Name, d.Name)
		}
		b := d.clone()
		byKey[key] = b
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	digest := digestOf(ordered)

	c.mu.Lock()
	c.byKey = byKey
	c.ordered = ordered
	c.digest = digest
	c.mu.Unlock()
	return nil
}

// Sync fetches definitions from src and replaces the catalog. On fetch
// error or malformed definitions the previous catalog is kept and an
// error wrapping ErrSyncFailed is returned.
func (c *Catalog) Sync(ctx context.Context, src Source) error {
	defs, err := src.FetchBoundaries(ctx)
	if err != nil {
		c.logger.Warn("boundary sync failed, keeping previous catalog",
			"error", err, "boundaries", c.Len())
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	if err := c.Replace(defs); err != nil {
		c.logger.Warn("boundary definitions rejected, keeping previous catalog",
			"error", err, "boundaries", c.Len())
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	c.logger.Info("boundary catalog loaded", "boundaries", len(defs))
	return nil
}

// Snapshot returns the current catalog version.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byKey
}

// Lookup returns the boundary declared for a parameter key.
func (c *Catalog) Lookup(key string) (Boundary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byKey[key]
	return b, ok
}

// Len returns the number of declared boundaries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}

// Boundaries returns the declared boundaries sorted by name.
func (c *Catalog) Boundaries() []Boundary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Boundary, len(c.ordered))
	for i, b := range c.ordered {
		out[i] = b.clone()
	}
	return out
}

// Summary returns the count, names and content digest of the catalog.
func (c *Catalog) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.ordered))
	for i, b := range c.ordered {
		names[i] = b.Name
	}
	return Summary{Count: len(c.ordered), Names: names, Digest: c.digest}
}

// digestOf hashes the canonical JSON of the sorted definition list.
func digestOf(ordered []Boundary) string {
	if ordered == nil {
		ordered = []Boundary{}
	}
	data, _ := json.Marshal(ordered)
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}

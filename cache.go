package tiffengine

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// cacheSlot is one TileIndex's entry in the cache's slot table: a per-slot
// lock guarding its decode critical section, acquired after the global map
// lock has already been released (spec.md 4.6/5).
type cacheSlot struct {
	mu sync.Mutex
}

// TileCache bounds the decoded-tile working set by byte budget, with
// single-flight decode coordination and FIFO eviction into a secondary,
// unbounded-by-budget "soft reference" tier a subsequent miss may still
// find alive (spec.md 9's adaptation of the original's true soft/weak
// references, which Go's non-tracing-GC-adjacent runtime has no equivalent
// of). Grounded on hashicorp/golang-lru/v2 (pulled in by the pack's
// arihant-dev-forest-bd-viewer, and indirectly by the teacher's own
// k8s client-go dependency) for the secondary tier's storage, and
// golang.org/x/sync/singleflight (the errgroup sibling package the pack's
// brawer-wikidata-qrank depends on) for decode-coordination, since neither
// the teacher nor any other pack repo has a ready answer for this concern.
type TileCache struct {
	mapMu sync.Mutex
	slots map[TileIndex]*cacheSlot

	maxMemory int64
	used      int64
	order     []TileIndex       // FIFO insertion order of currently-strong entries
	strong    map[TileIndex]*Tile

	// secondary is a soft-reference-like backstop: entries evicted from the
	// budgeted primary tier land here, sized generously (about 2x the
	// primary tier's typical entry count) rather than by byte budget,
	// standing in for the original's true soft references.
	secondary *lru.Cache[TileIndex, *Tile]

	group singleflight.Group

	engine *FileEngine
}

// NewTileCache builds a cache with the given byte budget (0 disables
// caching) over engine.
func NewTileCache(engine *FileEngine, maxMemoryBytes int64) *TileCache {
	secondary, _ := lru.New[TileIndex, *Tile](2048)
	return &TileCache{
		slots:     make(map[TileIndex]*cacheSlot),
		strong:    make(map[TileIndex]*Tile),
		maxMemory: maxMemoryBytes,
		secondary: secondary,
		engine:    engine,
	}
}

// SetMaxMemory changes the byte budget; 0 disables caching. Shrinking the
// budget immediately evicts down to the new limit.
func (c *TileCache) SetMaxMemory(bytes int64) {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	c.maxMemory = bytes
	c.evictLocked()
}

// Disable is equivalent to SetMaxMemory(0) followed by dropping every
// currently-strong entry and purging the secondary tier, so a disabled
// cache serves no stale hits from either tier.
func (c *TileCache) Disable() {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	c.maxMemory = 0
	for _, idx := range c.order {
		delete(c.strong, idx)
	}
	c.order = nil
	c.used = 0
	c.secondary.Purge()
}

// ReadTile fetches idx's decoded tile, consulting the cache first. Only one
// concurrent caller decodes any given idx; the rest block on its result
// (single-flight, spec.md 4.6).
func (c *TileCache) ReadTile(ctx context.Context, rm *ReadMap, idx TileIndex) (*Tile, error) {
	if t, ok := c.probe(idx); ok {
		return t, nil
	}

	key := idx.String()
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if t, ok := c.probe(idx); ok {
			return t, nil
		}
		slot := c.slotFor(idx)
		slot.mu.Lock()
		defer slot.mu.Unlock()

		if t, ok := c.probe(idx); ok {
			return t, nil
		}
		tile, err := rm.engine.readAndDecodeTile(ctx, rm.ifd, idx, rm.gridW, rm.gridH)
		if err != nil {
			// Failures are never memoized (spec.md 4.3): leave no trace in
			// either tier so the next caller retries from scratch.
			return nil, err
		}
		c.insert(idx, tile)
		return tile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tile), nil
}

// probe checks both cache tiers for idx without touching the decode path.
// A hit in the secondary tier is promoted back into the primary tier,
// modeling "the soft reference was still alive."
func (c *TileCache) probe(idx TileIndex) (*Tile, bool) {
	c.mapMu.Lock()
	if t, ok := c.strong[idx]; ok {
		c.mapMu.Unlock()
		return t, true
	}
	disabled := c.maxMemory <= 0
	c.mapMu.Unlock()
	if disabled {
		return nil, false
	}

	if t, ok := c.secondary.Get(idx); ok {
		c.mapMu.Lock()
		c.insertLocked(idx, t)
		c.mapMu.Unlock()
		return t, true
	}
	return nil, false
}

func (c *TileCache) slotFor(idx TileIndex) *cacheSlot {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	s, ok := c.slots[idx]
	if !ok {
		s = &cacheSlot{}
		c.slots[idx] = s
	}
	return s
}

func (c *TileCache) insert(idx TileIndex, tile *Tile) {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	c.insertLocked(idx, tile)
}

func (c *TileCache) insertLocked(idx TileIndex, tile *Tile) {
	if c.maxMemory <= 0 {
		// Caching disabled: don't populate either tier, or a "disabled"
		// cache would keep serving stale hits out of the secondary tier.
		return
	}
	if _, exists := c.strong[idx]; !exists {
		c.order = append(c.order, idx)
	}
	c.strong[idx] = tile
	c.used += int64(tile.StoredDataLength())
	c.evictLocked()
}

// evictLocked drops the oldest strong entries (FIFO) until the running
// total is within budget, demoting each to the secondary tier rather than
// discarding it outright (spec.md 4.6: "an evicted slot retains its key so
// that a subsequent hit either finds the still-reachable soft reference
// alive or falls through to a fresh decode"). Caller must hold c.mapMu.
func (c *TileCache) evictLocked() {
	for c.used > c.maxMemory && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		tile, ok := c.strong[oldest]
		if !ok {
			continue
		}
		delete(c.strong, oldest)
		c.used -= int64(tile.StoredDataLength())
		c.secondary.Add(oldest, tile)
	}
}

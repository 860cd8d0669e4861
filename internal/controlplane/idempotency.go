package controlplane

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

// DefaultIdempCacheSize and DefaultIdempWindowMs match spec.md §6's defaults
// (IDEMP_CACHE_SIZE=16, IDEMP_WINDOW_MS≈30000).
const (
	DefaultIdempCacheSize = 16
	DefaultIdempWindowMs  = 30_000
)

// buildRequestID derives a request id from msg.MetaJSON's "request_id" field
// if present, else deterministically via fnv1a32(channel|chat_id|media_type|content)
// prefixed "auto-", matching original_source's build_request_id.
func buildRequestID(msg bus.Message) string {
	if msg.MetaJSON != "" {
		var meta struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal([]byte(msg.MetaJSON), &meta); err == nil && meta.RequestID != "" {
			return meta.RequestID
		}
	}

	mediaType := msg.MediaType
	if mediaType == "" {
		mediaType = bus.MediaText
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s|%s", msg.Channel, msg.ChatID, mediaType, msg.Content)
	return fmt.Sprintf("auto-%08x", h.Sum32())
}

type idempEntry struct {
	used      bool
	tsMs      int64
	requestID string
	cached    Result
}

// idempCache is the fixed-capacity idempotency cache: linear scan, LRU
// eviction by oldest timestamp, TTL window. Callers must hold the Plane's
// lock; idempCache itself does no locking.
type idempCache struct {
	entries  []idempEntry
	windowMs int64
}

func newIdempCache(size int, windowMs int64) *idempCache {
	if size <= 0 {
		size = DefaultIdempCacheSize
	}
	if windowMs <= 0 {
		windowMs = DefaultIdempWindowMs
	}
	return &idempCache{entries: make([]idempEntry, size), windowMs: windowMs}
}

// lookup returns the cached result for requestID if a live (within TTL) entry
// exists, with DedupHit set.
func (c *idempCache) lookup(requestID string) (Result, bool) {
	if requestID == "" {
		return Result{}, false
	}
	now := nowMs()
	for _, e := range c.entries {
		if !e.used || e.requestID != requestID {
			continue
		}
		if now-e.tsMs > c.windowMs {
			continue
		}
		out := e.cached
		out.DedupHit = true
		return out, true
	}
	return Result{}, false
}

// store records a result for requestID, evicting the oldest entry (or first
// free slot) when full.
func (c *idempCache) store(requestID string, result Result) {
	if requestID == "" {
		return
	}
	slot := 0
	oldest := int64(1<<63 - 1)
	for i := range c.entries {
		if !c.entries[i].used {
			slot = i
			oldest = -1 << 63
			break
		}
		if c.entries[i].tsMs < oldest {
			oldest = c.entries[i].tsMs
			slot = i
		}
	}
	c.entries[slot] = idempEntry{used: true, tsMs: nowMs(), requestID: requestID, cached: result}
}

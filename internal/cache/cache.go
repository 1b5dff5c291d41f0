package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
)

// entryMeta is the in-process bookkeeping for one cached payload. Payload
// bytes live in the Store; metadata always stays local so compatibility checks
// and invalidation never need a round trip.
type entryMeta struct {
	derivedKey   string
	baseKey      string
	cacheType    models.CacheType
	sessionID    string
	signature    string
	entities     []string
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int
	ttl          time.Duration
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	TotalEntries  int                      `json:"total_entries"`
	Hits          int64                    `json:"hits"`
	Misses        int64                    `json:"misses"`
	Invalidations int64                    `json:"invalidations"`
	Evictions     int64                    `json:"evictions"`
	HitRate       float64                  `json:"hit_rate"`
	EntriesByType map[models.CacheType]int `json:"entries_by_type"`
}

// ContextAwareCache derives keys from the conversation state, so the same
// query cached under different topics or product contexts never collides, and
// invalidates entries when the conversation moves on.
type ContextAwareCache struct {
	mu      sync.Mutex
	cfg     config.CacheConfig
	store   Store
	logger  *zap.Logger
	entries map[string]*entryMeta
	// sessionKeys and entityKeys index derived keys for targeted invalidation.
	sessionKeys map[string]map[string]struct{}
	entityKeys  map[string]map[string]struct{}

	hits          int64
	misses        int64
	invalidations int64
	evictions     int64

	now func() time.Time
}

func NewContextAwareCache(cfg config.CacheConfig, store Store, logger *zap.Logger) *ContextAwareCache {
	return &ContextAwareCache{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		entries:     make(map[string]*entryMeta),
		sessionKeys: make(map[string]map[string]struct{}),
		entityKeys:  make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

// Get returns the cached payload for a base key under the current context.
// Store errors degrade to a miss; the cache never fails a request.
func (c *ContextAwareCache) Get(ctx context.Context, baseKey string, cacheType models.CacheType, conv *models.ConversationContext) ([]byte, bool) {
	derived := c.DeriveKey(baseKey, conv)

	c.mu.Lock()
	meta, ok := c.entries[derived]
	if !ok {
		c.misses++
		c.mu.Unlock()
		observability.CacheMisses.WithLabelValues(string(cacheType)).Inc()
		return nil, false
	}
	if c.now().Sub(meta.createdAt) >= meta.ttl {
		c.removeLocked(derived)
		c.misses++
		c.mu.Unlock()
		observability.CacheMisses.WithLabelValues(string(cacheType)).Inc()
		return nil, false
	}
	if !c.compatibleLocked(meta, conv) {
		c.removeLocked(derived)
		c.invalidations++
		c.misses++
		c.mu.Unlock()
		observability.CacheInvalidations.WithLabelValues("context_drift").Inc()
		observability.CacheMisses.WithLabelValues(string(cacheType)).Inc()
		return nil, false
	}
	meta.lastAccessed = c.now()
	meta.accessCount++
	c.mu.Unlock()

	value, found, err := c.store.Get(ctx, derived)
	if err != nil || !found {
		if err != nil {
			c.logger.Warn("cache store get failed", zap.String("key", derived), zap.Error(err))
		}
		c.mu.Lock()
		c.removeLocked(derived)
		c.misses++
		c.mu.Unlock()
		observability.CacheMisses.WithLabelValues(string(cacheType)).Inc()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	observability.CacheHits.WithLabelValues(string(cacheType)).Inc()
	return value, true
}

// Set stores a payload under the context-derived key.
func (c *ContextAwareCache) Set(ctx context.Context, baseKey string, value []byte, cacheType models.CacheType, conv *models.ConversationContext) error {
	derived := c.DeriveKey(baseKey, conv)
	ttl := c.ttlFor(cacheType)

	if err := c.store.Set(ctx, derived, value, ttl); err != nil {
		c.logger.Warn("cache store set failed", zap.String("key", derived), zap.Error(err))
		return err
	}

	entities := contextEntityIDs(conv)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictLocked(ctx)
	}

	c.entries[derived] = &entryMeta{
		derivedKey:   derived,
		baseKey:      baseKey,
		cacheType:    cacheType,
		sessionID:    conv.SessionID,
		signature:    contextSignature(conv),
		entities:     entities,
		createdAt:    c.now(),
		lastAccessed: c.now(),
		accessCount:  1,
		ttl:          ttl,
	}

	if c.sessionKeys[conv.SessionID] == nil {
		c.sessionKeys[conv.SessionID] = make(map[string]struct{})
	}
	c.sessionKeys[conv.SessionID][derived] = struct{}{}
	for _, id := range entities {
		if c.entityKeys[id] == nil {
			c.entityKeys[id] = make(map[string]struct{})
		}
		c.entityKeys[id][derived] = struct{}{}
	}
	return nil
}

// InvalidateContext drops entries made stale by a conversation event. The
// entityID argument applies only to entity expiry.
func (c *ContextAwareCache) InvalidateContext(ctx context.Context, sessionID string, event models.ContextEvent, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []string
	switch event {
	case models.EventSessionReset:
		for key := range c.sessionKeys[sessionID] {
			doomed = append(doomed, key)
		}
	case models.EventNewProduct:
		for key := range c.sessionKeys[sessionID] {
			if meta, ok := c.entries[key]; ok {
				if meta.cacheType == models.CacheSearchResult || meta.cacheType == models.CacheContextResolution {
					doomed = append(doomed, key)
				}
			}
		}
	case models.EventTopicSwitch:
		for key := range c.sessionKeys[sessionID] {
			if meta, ok := c.entries[key]; ok && meta.cacheType == models.CacheContextResolution {
				doomed = append(doomed, key)
			}
		}
	case models.EventEntityExpiry:
		if entityID != "" {
			for key := range c.entityKeys[entityID] {
				doomed = append(doomed, key)
			}
		}
	}

	for _, key := range doomed {
		c.removeLocked(key)
		c.invalidations++
	}
	if len(doomed) > 0 {
		observability.CacheInvalidations.WithLabelValues(string(event)).Add(float64(len(doomed)))
		_ = c.store.Delete(ctx, doomed...)
		c.logger.Debug("cache invalidated",
			zap.String("session_id", sessionID),
			zap.String("event", string(event)),
			zap.Int("entries", len(doomed)),
		)
	}
}

// DeriveKey folds the conversation state into the cache key: topic, the last
// two products, the last two context types, and a preference hash. Stable for
// identical contexts.
func (c *ContextAwareCache) DeriveKey(baseKey string, conv *models.ConversationContext) string {
	components := []string{baseKey, conv.SessionID}

	if conv.CurrentTopic != "" {
		components = append(components, "topic:"+conv.CurrentTopic)
	}

	products := conv.DiscussedProducts
	if len(products) > 2 {
		products = products[len(products)-2:]
	}
	for _, p := range products {
		components = append(components, "product:"+p.ID)
	}

	if len(conv.ContextStack) > 0 {
		stack := conv.ContextStack
		if len(stack) > 2 {
			stack = stack[len(stack)-2:]
		}
		parts := make([]string, len(stack))
		for i, ct := range stack {
			parts[i] = string(ct)
		}
		components = append(components, "contexts:"+strings.Join(parts, ","))
	}

	if len(conv.Preferences) > 0 {
		components = append(components, "prefs:"+preferencesHash(conv.Preferences))
	}

	combined := strings.Join(components, "|")
	sum := sha256.Sum256([]byte(combined))
	return fmt.Sprintf("%s:%x", baseKey, sum[:8])
}

// Stats snapshots counters and per-type entry counts.
func (c *ContextAwareCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byType := make(map[models.CacheType]int)
	for _, meta := range c.entries {
		byType[meta.cacheType]++
	}

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		TotalEntries:  len(c.entries),
		Hits:          c.hits,
		Misses:        c.misses,
		Invalidations: c.invalidations,
		Evictions:     c.evictions,
		HitRate:       hitRate,
		EntriesByType: byType,
	}
}

// StartJanitor sweeps expired metadata until ctx is cancelled.
func (c *ContextAwareCache) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx)
			}
		}
	}()
}

func (c *ContextAwareCache) sweep(ctx context.Context) {
	c.mu.Lock()
	var expired []string
	now := c.now()
	for key, meta := range c.entries {
		if now.Sub(meta.createdAt) >= meta.ttl {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeLocked(key)
	}
	c.mu.Unlock()

	if len(expired) > 0 {
		_ = c.store.Delete(ctx, expired...)
		c.logger.Debug("swept expired cache entries", zap.Int("count", len(expired)))
	}
}

// evictLocked drops the least recently used tenth of the cache.
func (c *ContextAwareCache) evictLocked(ctx context.Context) {
	count := len(c.entries) / 10
	if count < 1 {
		count = 1
	}

	metas := make([]*entryMeta, 0, len(c.entries))
	for _, meta := range c.entries {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].lastAccessed.Before(metas[j].lastAccessed)
	})

	var doomed []string
	for i := 0; i < count && i < len(metas); i++ {
		doomed = append(doomed, metas[i].derivedKey)
		c.removeLocked(metas[i].derivedKey)
		c.evictions++
	}
	observability.CacheEvictions.Add(float64(len(doomed)))
	_ = c.store.Delete(ctx, doomed...)
}

func (c *ContextAwareCache) removeLocked(derived string) {
	meta, ok := c.entries[derived]
	if !ok {
		return
	}
	delete(c.entries, derived)

	if keys, ok := c.sessionKeys[meta.sessionID]; ok {
		delete(keys, derived)
		if len(keys) == 0 {
			delete(c.sessionKeys, meta.sessionID)
		}
	}
	for _, id := range meta.entities {
		if keys, ok := c.entityKeys[id]; ok {
			delete(keys, derived)
			if len(keys) == 0 {
				delete(c.entityKeys, id)
			}
		}
	}
}

// compatibleLocked decides whether a cached entry still fits the context.
// Context resolutions demand an exact signature; everything else tolerates
// drift up to the entity overlap threshold.
func (c *ContextAwareCache) compatibleLocked(meta *entryMeta, conv *models.ConversationContext) bool {
	if meta.sessionID != conv.SessionID {
		return false
	}
	if meta.cacheType == models.CacheContextResolution {
		return meta.signature == contextSignature(conv)
	}

	current := contextEntityIDs(conv)
	if len(meta.entities) == 0 || len(current) == 0 {
		return true
	}

	cached := make(map[string]struct{}, len(meta.entities))
	for _, id := range meta.entities {
		cached[id] = struct{}{}
	}
	overlap := 0
	union := len(cached)
	for _, id := range current {
		if _, ok := cached[id]; ok {
			overlap++
		} else {
			union++
		}
	}
	return float64(overlap)/float64(union) >= c.cfg.EntityOverlapThreshold
}

func (c *ContextAwareCache) ttlFor(cacheType models.CacheType) time.Duration {
	switch cacheType {
	case models.CacheProductInfo:
		return c.cfg.TTL.ProductInfo
	case models.CacheContextResolution:
		return c.cfg.TTL.ContextResolution
	case models.CacheFeatureExtraction:
		return c.cfg.TTL.FeatureExtraction
	case models.CacheSimilarityScore:
		return c.cfg.TTL.SimilarityScore
	default:
		return c.cfg.TTL.SearchResult
	}
}

// contextSignature fingerprints the parts of the context that make a
// resolution reusable.
func contextSignature(conv *models.ConversationContext) string {
	stack := conv.ContextStack
	if len(stack) > 3 {
		stack = stack[len(stack)-3:]
	}
	parts := make([]string, len(stack))
	for i, ct := range stack {
		parts[i] = string(ct)
	}

	raw := fmt.Sprintf("%s|%s|%d|%s|%s",
		conv.SessionID,
		conv.CurrentTopic,
		len(conv.DiscussedProducts),
		strings.Join(parts, ","),
		preferencesHash(conv.Preferences),
	)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:16])
}

// contextEntityIDs collects the entity IDs an entry depends on: the last
// three products and up to five active entities.
func contextEntityIDs(conv *models.ConversationContext) []string {
	var ids []string

	products := conv.DiscussedProducts
	if len(products) > 3 {
		products = products[len(products)-3:]
	}
	for _, p := range products {
		ids = append(ids, p.ID)
	}

	active := make([]string, 0, len(conv.ActiveEntities))
	for id := range conv.ActiveEntities {
		active = append(active, id)
	}
	sort.Strings(active)
	if len(active) > 5 {
		active = active[:5]
	}
	ids = append(ids, active...)

	seen := make(map[string]struct{}, len(ids))
	unique := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func preferencesHash(prefs map[string]string) string {
	if len(prefs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(prefs[k])
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:4])
}

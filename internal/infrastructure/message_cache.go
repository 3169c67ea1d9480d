package infrastructure

import "sync"

// MessageCache is a bounded set of recently seen inbound message ids, used
// to process each webhook delivery at most once. Entries live in memory
// only; a restart forgets everything, which is acceptable because the
// provider stops redelivering after the 200 ack.
type MessageCache struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	order       []string // insertion order, oldest first
	maxSize     int
	cleanupSize int
}

// NewMessageCache creates a cache that holds at most maxSize ids and, when
// that limit is crossed, keeps only the cleanupSize most recent insertions.
func NewMessageCache(maxSize, cleanupSize int) *MessageCache {
	if cleanupSize > maxSize {
		cleanupSize = maxSize
	}
	return &MessageCache{
		seen:        make(map[string]struct{}, maxSize),
		maxSize:     maxSize,
		cleanupSize: cleanupSize,
	}
}

// Has reports whether messageID was already added. Lookup never evicts.
func (c *MessageCache) Has(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[messageID]
	return ok
}

// Add inserts messageID and then shrinks the set if it grew past maxSize.
func (c *MessageCache) Add(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[messageID]; !ok {
		c.seen[messageID] = struct{}{}
		c.order = append(c.order, messageID)
	}

	if len(c.order) > c.maxSize {
		keep := c.order[len(c.order)-c.cleanupSize:]
		c.seen = make(map[string]struct{}, c.maxSize)
		c.order = make([]string, 0, c.maxSize)
		for _, id := range keep {
			c.seen[id] = struct{}{}
			c.order = append(c.order, id)
		}
	}
}

// Size returns the current number of cached ids.
func (c *MessageCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

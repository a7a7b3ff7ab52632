package media

import (
	"sync"
	"time"
)

// Item is one media resource seen on a page.
type Item struct {
	URL         string    `json:"url"`
	Kind        Kind      `json:"type"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	PageURL     string    `json:"page_url,omitempty"`
	SeenAt      time.Time `json:"seen_at"`
}

// Catalog deduplicates items by their normalised URL, keeping the largest copy.
type Catalog struct {
	mu    sync.Mutex
	items map[string]Item // keyed by NormalizeForDedup(URL)
	order []string
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[string]Item)}
}

// Add records item. Stream segments are ignored. When an equivalent item exists the
// larger one is kept, the thumbnail survives either way and SeenAt is refreshed.
// It reports whether item introduced a new entry.
func (c *Catalog) Add(item Item) bool {
	if IsStreamSegment(item.URL) {
		return false
	}
	if item.Filename == "" {
		item.Filename = FilenameFromURL(item.URL)
	}
	if item.SeenAt.IsZero() {
		item.SeenAt = time.Now()
	}
	key := NormalizeForDedup(item.URL)

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.items[key]
	if !ok {
		c.items[key] = item
		c.order = append(c.order, key)
		return true
	}

	merged := existing
	if item.Size > existing.Size {
		merged = item
		if merged.Thumbnail == "" {
			merged.Thumbnail = existing.Thumbnail
		}
	} else {
		if merged.Thumbnail == "" {
			merged.Thumbnail = item.Thumbnail
		}
		merged.SeenAt = item.SeenAt
	}
	c.items[key] = merged
	return false
}

// Items returns the catalogue in first-seen order.
func (c *Catalog) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.items[key])
	}
	return out
}

// Len returns the number of distinct items.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

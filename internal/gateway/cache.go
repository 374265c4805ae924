// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package gateway

import (
	"container/list"
	"strings"
	"sync"
)

// replyCache is a bounded cache of generated replies keyed by the
// lowercased user prompt. It short-circuits negotiation for repeated
// prompts on Submit; Regenerate never consults it, since its purpose is
// a different answer.
type replyCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key  string
	text string
}

// newReplyCache returns a cache holding at most capacity entries; a
// capacity of zero or less disables caching entirely.
func newReplyCache(capacity int) *replyCache {
	return &replyCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (c *replyCache) get(text string) (string, bool) {
	if c.capacity <= 0 {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[cacheKey(text)]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).text, true
}

func (c *replyCache) put(text, reply string) {
	if c.capacity <= 0 {
		return
	}

	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).text = reply
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, text: reply})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

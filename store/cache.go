package store

import (
	"container/list"
	"sync"

	"github.com/NKID00/aidb"
)

// cache keeps recently touched blocks in memory, write-through. It
// sits between the store and the block device; eviction is LRU.
type cache struct {
	aidb.Device

	mu    sync.Mutex
	limit int
	order *list.List // front = most recent; holds *cacheEntry
	byIdx map[aidb.BlockIndex]*list.Element
}

type cacheEntry struct {
	index aidb.BlockIndex
	data  []byte
}

func newCache(dev aidb.Device, limit int) *cache {
	return &cache{
		Device: dev,
		limit:  limit,
		order:  list.New(),
		byIdx:  make(map[aidb.BlockIndex]*list.Element, limit),
	}
}

func (c *cache) Read(index aidb.BlockIndex, buf []byte) error {
	c.mu.Lock()
	if elem, ok := c.byIdx[index]; ok {
		c.order.MoveToFront(elem)
		copy(buf, elem.Value.(*cacheEntry).data)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := c.Device.Read(index, buf); err != nil {
		return err
	}
	c.store(index, buf)
	return nil
}

func (c *cache) Write(index aidb.BlockIndex, buf []byte) error {
	if err := c.Device.Write(index, buf); err != nil {
		return err
	}
	c.store(index, buf)
	return nil
}

func (c *cache) store(index aidb.BlockIndex, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.byIdx[index]; ok {
		copy(elem.Value.(*cacheEntry).data, buf)
		c.order.MoveToFront(elem)
		return
	}
	for c.order.Len() >= c.limit {
		last := c.order.Back()
		delete(c.byIdx, last.Value.(*cacheEntry).index)
		c.order.Remove(last)
	}
	entry := &cacheEntry{index: index, data: append([]byte(nil), buf...)}
	c.byIdx[index] = c.order.PushFront(entry)
}

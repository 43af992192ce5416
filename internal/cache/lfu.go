// Package cache 提供进程内缓存
package cache

import (
	"container/list"
	"sync"
	"time"

	"contentstudio/internal/metrics"
)

type lfuNode[V any] struct {
	key       string
	value     V
	frequency int
	expiresAt time.Time
}

// LFU 按访问频率淘汰的内存缓存，频率相同时淘汰最早进入该频率的条目
type LFU[V any] struct {
	name     string
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu         sync.Mutex
	minFreq    int
	keyToElem  map[string]*list.Element
	freqToList map[int]*list.List
}

// NewLFU 创建缓存；ttl 为 0 表示条目不过期，name 用作指标标签
func NewLFU[V any](name string, capacity int, ttl time.Duration) *LFU[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LFU[V]{
		name:       name,
		capacity:   capacity,
		ttl:        ttl,
		now:        time.Now,
		keyToElem:  make(map[string]*list.Element),
		freqToList: make(map[int]*list.List),
	}
}

// Get 读取条目，命中时频率加一
func (c *LFU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.keyToElem[key]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}
	node := elem.Value.(*lfuNode[V])
	if !node.expiresAt.IsZero() && c.now().After(node.expiresAt) {
		c.remove(elem)
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}
	c.touch(elem)
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	return node.value, true
}

// Set 写入条目，已存在时更新值并增加频率
func (c *LFU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	if elem, ok := c.keyToElem[key]; ok {
		node := elem.Value.(*lfuNode[V])
		node.value = value
		node.expiresAt = expiresAt
		c.touch(elem)
		return
	}
	if len(c.keyToElem) >= c.capacity {
		c.evict()
	}
	node := &lfuNode[V]{key: key, value: value, frequency: 1, expiresAt: expiresAt}
	c.keyToElem[key] = c.listFor(1).PushBack(node)
	c.minFreq = 1
}

// Delete 删除条目
func (c *LFU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.keyToElem[key]; ok {
		c.remove(elem)
	}
}

// Clear 清空缓存
func (c *LFU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyToElem = make(map[string]*list.Element)
	c.freqToList = make(map[int]*list.List)
	c.minFreq = 0
}

// Len 当前条目数
func (c *LFU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keyToElem)
}

func (c *LFU[V]) listFor(freq int) *list.List {
	l := c.freqToList[freq]
	if l == nil {
		l = list.New()
		c.freqToList[freq] = l
	}
	return l
}

func (c *LFU[V]) touch(elem *list.Element) {
	node := elem.Value.(*lfuNode[V])
	old := c.freqToList[node.frequency]
	old.Remove(elem)
	if old.Len() == 0 {
		delete(c.freqToList, node.frequency)
		if c.minFreq == node.frequency {
			c.minFreq++
		}
	}
	node.frequency++
	c.keyToElem[node.key] = c.listFor(node.frequency).PushBack(node)
}

func (c *LFU[V]) remove(elem *list.Element) {
	node := elem.Value.(*lfuNode[V])
	l := c.freqToList[node.frequency]
	l.Remove(elem)
	if l.Len() == 0 {
		delete(c.freqToList, node.frequency)
	}
	delete(c.keyToElem, node.key)
}

func (c *LFU[V]) evict() {
	l := c.freqToList[c.minFreq]
	if l == nil {
		// minFreq 在删除后可能失效，退回全量扫描
		c.minFreq = 0
		for f := range c.freqToList {
			if c.minFreq == 0 || f < c.minFreq {
				c.minFreq = f
			}
		}
		if l = c.freqToList[c.minFreq]; l == nil {
			return
		}
	}
	if front := l.Front(); front != nil {
		c.remove(front)
		metrics.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
	}
}

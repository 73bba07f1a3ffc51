// Package cache 进程内加载缓存：同一内容的源文件只解析、清洗一次。
package cache

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Stats 缓存统计
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// MemoryCache 以内容指纹为键的内存缓存
//
// 并发请求同一个键时只执行一次 loader，其余调用方共享结果；loader 出错不缓存。
type MemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	paths   map[string]string // 源路径 -> 当前指纹
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{
		entries: make(map[string]V),
		paths:   make(map[string]string),
	}
}

// Get 查询缓存
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[key]
	return v, ok
}

// GetOrCompute 命中则直接返回，否则执行 loader 并缓存成功结果；hit 表示是否命中
func (c *MemoryCache[V]) GetOrCompute(key string, loader func() (V, error)) (value V, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		// 排队期间可能已被其他调用方写入
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		c.misses.Add(1)
		v, err := loader()
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.entries[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, _ := res.(V)
	return v, false, nil
}

// Track 记录源路径当前对应的指纹；文件内容变化时淘汰旧指纹的缓存
func (c *MemoryCache[V]) Track(path, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.paths[path]
	c.paths[path] = key
	if !ok || old == key {
		return
	}
	for _, k := range c.paths {
		if k == old {
			return
		}
	}
	delete(c.entries, old)
}

// Len 缓存条目数
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats 缓存统计
func (c *MemoryCache[V]) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

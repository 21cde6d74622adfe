package erc

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of net check results kept.
const DefaultCacheSize = 4096

// resultCache memoises cacheable net check findings by rule key and net
// signature. It is safe for concurrent use.
type resultCache struct {
	entries *lru.Cache[string, []Finding]
}

func newResultCache(size int) (*resultCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, []Finding](size)
	if err != nil {
		return nil, err
	}
	return &resultCache{entries: c}, nil
}

func (c *resultCache) get(key string) ([]Finding, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *resultCache) put(key string, f []Finding) {
	if c != nil {
		c.entries.Add(key, f)
	}
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// netSignature identifies the inputs a cacheable check depends on.
func netSignature(rule string, s *NetSubject) string {
	var b strings.Builder
	b.WriteString(rule)
	for _, o := range s.Members {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(uint64(o.ID), 10))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(o.Kind)))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(o.Direction)))
	}
	return b.String()
}

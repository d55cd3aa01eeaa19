package dataset

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Cached wraps a ClientData with an LRU cache of client datasets. Cohort sampling revisits
// clients across rounds, so dataset loads (disk or synthesis) are worth keeping warm.
type Cached struct {
	inner ClientData
	cache *lru.Cache[string, Dataset]
}

// NewCached builds a caching wrapper holding at most size client datasets.
func NewCached(inner ClientData, size int) (*Cached, error) {
	cache, err := lru.New[string, Dataset](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating client dataset cache")
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// ClientIDs implements ClientData.
func (c *Cached) ClientIDs() []string { return c.inner.ClientIDs() }

// ClientDataset implements ClientData.
func (c *Cached) ClientDataset(id string) (Dataset, error) {
	if ds, ok := c.cache.Get(id); ok {
		return ds, nil
	}
	ds, err := c.inner.ClientDataset(id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, ds)
	return ds, nil
}

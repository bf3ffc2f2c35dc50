package memory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

type Catalog struct {
	mu         sync.RWMutex
	properties map[uuid.UUID]domain.Property
}

func NewCatalog(properties ...domain.Property) *Catalog {
	c := &Catalog{properties: make(map[uuid.UUID]domain.Property)}
	for _, p := range properties {
		c.properties[p.ID] = p
	}
	return c
}

func (c *Catalog) Put(p domain.Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[p.ID] = p
}

func (c *Catalog) Property(ctx context.Context, id uuid.UUID) (domain.Property, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.properties[id]
	if !ok {
		return domain.Property{}, errors.Wrapf(domain.ErrNotFound, "property %s", id)
	}
	return p, nil
}

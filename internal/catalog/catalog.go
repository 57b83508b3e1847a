// Package catalog loads and holds the exported platform tables (users,
// dishes, stores, tag definitions, interactions). All string-serialized
// list columns are parsed once here, at the ingestion boundary; nothing
// downstream re-parses cell text.
package catalog

import (
	"github.com/platefeed/recsys/internal/models"
)

// Catalog is one immutable snapshot of the exported tables. Dish order
// follows the export file row order and is the deterministic tie-break
// order for retrieval.
type Catalog struct {
	Users  map[string]*models.User
	Dishes []*models.Dish
	Stores map[string]*models.Store

	dishByID  map[string]*models.Dish
	tagByName map[string]models.Tag
	// tag names per namespace, file order (vocabulary build order)
	namesByNamespace map[models.Namespace][]string

	userOrder  []string
	storeOrder []string
}

// New assembles a Catalog from parsed tables. Dishes keep their given order.
func New(users []*models.User, dishes []*models.Dish, stores []*models.Store, tags []models.Tag) *Catalog {
	c := &Catalog{
		Users:            make(map[string]*models.User, len(users)),
		Dishes:           dishes,
		Stores:           make(map[string]*models.Store, len(stores)),
		dishByID:         make(map[string]*models.Dish, len(dishes)),
		tagByName:        make(map[string]models.Tag, len(tags)),
		namesByNamespace: make(map[models.Namespace][]string),
	}

	for _, u := range users {
		if _, seen := c.Users[u.ID]; !seen {
			c.userOrder = append(c.userOrder, u.ID)
		}

		c.Users[u.ID] = u
	}

	for _, d := range dishes {
		c.dishByID[d.ID] = d
	}

	for _, s := range stores {
		if _, seen := c.Stores[s.ID]; !seen {
			c.storeOrder = append(c.storeOrder, s.ID)
		}

		c.Stores[s.ID] = s
	}

	for _, t := range tags {
		if _, seen := c.tagByName[t.Name]; seen {
			continue
		}

		c.tagByName[t.Name] = t
		c.namesByNamespace[t.Namespace] = append(c.namesByNamespace[t.Namespace], t.Name)
	}

	return c
}

// UserIDs returns user ids in export file order.
func (c *Catalog) UserIDs() []string {
	return c.userOrder
}

// StoreIDs returns store ids in export file order.
func (c *Catalog) StoreIDs() []string {
	return c.storeOrder
}

// Dish returns the dish with the given id, or nil.
func (c *Catalog) Dish(id string) *models.Dish {
	return c.dishByID[id]
}

// User returns the user with the given id, or nil.
func (c *Catalog) User(id string) *models.User {
	return c.Users[id]
}

// Tag returns the tag with the given name and whether it exists.
func (c *Catalog) Tag(name string) (models.Tag, bool) {
	t, ok := c.tagByName[name]

	return t, ok
}

// TagNames returns all tag names in one namespace, in export file order.
func (c *Catalog) TagNames(ns models.Namespace) []string {
	return c.namesByNamespace[ns]
}

// AllTagNames returns every tag name across the four namespaces in
// canonical namespace order, file order within a namespace. This is the
// shared tag vocabulary build order.
func (c *Catalog) AllTagNames() []string {
	var out []string
	for _, ns := range models.Namespaces {
		out = append(out, c.namesByNamespace[ns]...)
	}

	return out
}

// WithUser returns a shallow copy of the catalog with one existing user
// record replaced. The original catalog is never mutated; live readers of
// an older snapshot keep seeing the old record.
func (c *Catalog) WithUser(u *models.User) *Catalog {
	clone := *c

	clone.Users = make(map[string]*models.User, len(c.Users))
	for id, rec := range c.Users {
		clone.Users[id] = rec
	}

	clone.Users[u.ID] = u

	return &clone
}

// WithDish returns a shallow copy of the catalog with one existing dish
// record replaced, preserving row order.
func (c *Catalog) WithDish(d *models.Dish) *Catalog {
	clone := *c

	clone.Dishes = make([]*models.Dish, len(c.Dishes))
	copy(clone.Dishes, c.Dishes)

	clone.dishByID = make(map[string]*models.Dish, len(c.dishByID))
	for id, rec := range c.dishByID {
		clone.dishByID[id] = rec
	}

	for i, rec := range clone.Dishes {
		if rec.ID == d.ID {
			clone.Dishes[i] = d
			break
		}
	}

	clone.dishByID[d.ID] = d

	return &clone
}

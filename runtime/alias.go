package runtime

import (
	"time"

	c "github.com/patrickmn/go-cache"
)

// AliasTable translates human field names into opaque field ids.
type AliasTable struct {
	byName       map[string][]string
	byCollection map[string]map[string]string
	ids          map[string]struct{}
}

// NewAliasTable indexes the field definitions of a project.
func NewAliasTable(fields []Field) *AliasTable {
	t := &AliasTable{
		byName:       make(map[string][]string),
		byCollection: make(map[string]map[string]string),
		ids:          make(map[string]struct{}),
	}
	for _, f := range fields {
		t.ids[f.ID] = struct{}{}
		if f.Name == "" || f.Name == f.ID {
			continue
		}
		t.byName[f.Name] = append(t.byName[f.Name], f.ID)
		if f.CollectionID != "" {
			names, ok := t.byCollection[f.CollectionID]
			if !ok {
				names = make(map[string]string)
				t.byCollection[f.CollectionID] = names
			}
			names[f.Name] = f.ID
		}
	}
	return t
}

// Candidates returns the field ids registered under a human name.
func (t *AliasTable) Candidates(name string) []string {
	if t == nil {
		return nil
	}
	return t.byName[name]
}

// FieldID maps a field reference inside a collection to its id. References
// that already are ids, or are unknown, are returned unchanged.
func (t *AliasTable) FieldID(collectionID, ref string) string {
	if t == nil {
		return ref
	}
	if _, ok := t.ids[ref]; ok {
		return ref
	}
	if id, ok := t.byCollection[collectionID][ref]; ok {
		return id
	}
	if ids := t.byName[ref]; len(ids) == 1 {
		return ids[0]
	}
	return ref
}

// AliasCache shares alias tables between engine instances of one process.
type AliasCache struct {
	cache *c.Cache
}

func NewAliasCache(ttl time.Duration) *AliasCache {
	expiration := ttl
	if ttl <= 0 {
		expiration = c.NoExpiration
	}
	return &AliasCache{
		cache: c.New(expiration, 10*time.Minute),
	}
}

func (ac *AliasCache) Get(projectID string) (*AliasTable, bool) {
	v, found := ac.cache.Get(projectID)
	if !found {
		return nil, false
	}
	t, ok := v.(*AliasTable)
	return t, ok
}

func (ac *AliasCache) Put(projectID string, table *AliasTable) {
	ac.cache.SetDefault(projectID, table)
}

// Invalidate forgets a project's table, e.g. after its fields changed.
func (ac *AliasCache) Invalidate(projectID string) {
	ac.cache.Delete(projectID)
}

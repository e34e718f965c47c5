package recordstore

import "sync"

// identityIndex maps canonical identities to the form stored in the table,
// per source. Rows written by other tools may carry the prefix in another
// case, no prefix at all, or padding; fetches and write-backs must target that
// stored key or the unique index sees a new identity.
type identityIndex struct {
	mu      sync.RWMutex
	sources map[string]map[string]string
}

func newIdentityIndex() *identityIndex {
	return &identityIndex{sources: make(map[string]map[string]string)}
}

// replace installs a freshly streamed index for source.
func (x *identityIndex) replace(source string, stored map[string]string) {
	x.mu.Lock()
	x.sources[source] = stored
	x.mu.Unlock()
}

// drop forgets source; the next lookup streams it again.
func (x *identityIndex) drop(source string) {
	x.mu.Lock()
	delete(x.sources, source)
	x.mu.Unlock()
}

// lookup resolves ids to their stored form. Identities the index does not know
// resolve through render. ok is false when source was never indexed.
func (x *identityIndex) lookup(source string, ids []string, render func(string) string) (forms map[string]string, ok bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	index, ok := x.sources[source]
	if !ok {
		return nil, false
	}
	forms = make(map[string]string, len(ids))
	for _, id := range ids {
		if stored, known := index[id]; known {
			forms[id] = stored
		} else {
			forms[id] = render(id)
		}
	}
	return forms, true
}

// remember records stored forms written by this store.
func (x *identityIndex) remember(source string, forms map[string]string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	index, ok := x.sources[source]
	if !ok {
		return
	}
	for id, stored := range forms {
		if _, known := index[id]; !known {
			index[id] = stored
		}
	}
}

// indexBuilder collects the index of one source while it is streamed in
// primary key order. The oldest row of a canonical identity wins.
type indexBuilder struct {
	stored     map[string]string
	duplicates []string
}

func newIndexBuilder() *indexBuilder {
	return &indexBuilder{stored: make(map[string]string)}
}

func (b *indexBuilder) add(canonical, stored string) {
	if canonical == "" {
		return
	}
	if _, ok := b.stored[canonical]; ok {
		b.duplicates = append(b.duplicates, stored)
		return
	}
	b.stored[canonical] = stored
}

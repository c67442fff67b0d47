package search

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/storage"
)

// Index is an in-memory full-text index over the entries a cache has loaded.
// It lives as long as the cache and is never written to disk.
type Index struct {
	idx bleve.Index
	log *debuglog.FieldLogger

	mu      sync.RWMutex
	docs    map[string]storage.Entry
	version uint64
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{
		idx:  idx,
		log:  debuglog.WithFields(map[string]interface{}{"component": "search"}),
		docs: map[string]storage.Entry{},
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.IncludeTermVectors = true

	caption := bleve.NewTextFieldMapping()
	caption.Analyzer = standard.Name

	author := bleve.NewTextFieldMapping()
	author.Analyzer = standard.Name

	country := bleve.NewKeywordFieldMapping()

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("caption", caption)
	dm.AddFieldMappingsAt("author", author)
	dm.AddFieldMappingsAt("country", country)

	im.DefaultMapping = dm
	return im
}

func (i *Index) Close() error {
	return i.idx.Close()
}

// Sync makes the index hold exactly entries. Entries whose text is unchanged
// are not reindexed, so counter updates cost nothing.
func (i *Index) Sync(entries []storage.Entry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.syncLocked(entries)
}

// syncLocked replaces i.docs only once the batch is applied, so a failed sync
// leaves every entry eligible for reindexing.
func (i *Index) syncLocked(entries []storage.Entry) error {
	batch := i.idx.NewBatch()
	docs := make(map[string]storage.Entry, len(entries))

	for _, e := range entries {
		docs[e.ID] = e
		if old, ok := i.docs[e.ID]; ok && sameText(old, e) {
			continue
		}
		if err := batch.Index(e.ID, document(e)); err != nil {
			return err
		}
	}

	for id := range i.docs {
		if _, ok := docs[id]; !ok {
			batch.Delete(id)
		}
	}

	if batch.Size() > 0 {
		if err := i.idx.Batch(batch); err != nil {
			return err
		}
	}
	i.docs = docs
	return nil
}

func document(e storage.Entry) map[string]any {
	return map[string]any{
		"title":   e.Title,
		"caption": e.Caption,
		"author":  e.Author.Name,
		"country": e.Author.Country,
	}
}

func sameText(a, b storage.Entry) bool {
	return a.Title == b.Title && a.Caption == b.Caption &&
		a.Author.Name == b.Author.Name && a.Author.Country == b.Author.Country
}

// Attach keeps the index in step with c until the returned func is called.
func (i *Index) Attach(c *feed.Cache) (detach func()) {
	i.apply(c.State())
	return c.OnStateChange(i.apply)
}

func (i *Index) apply(s feed.State) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if s.Version != 0 && s.Version <= i.version {
		return
	}
	i.version = s.Version
	if err := i.syncLocked(s.Entries); err != nil {
		i.log.Errorf("sync: %v", err)
	}
}

// Search returns up to limit entries matching query, best first. Queries
// shorter than two characters match nothing.
func (i *Index) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 || limit <= 0 {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	var qs []bleveQuery.Query
	for _, term := range terms {
		qs = append(qs,
			fieldMatch(term, "title", 4.0),
			fieldPrefix(term, "title", 3.5),
			fieldMatch(term, "caption", 2.0),
			fieldPrefix(term, "caption", 1.8),
			fieldMatch(term, "author", 1.5),
		)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		e, ok := i.docs[h.ID]
		if !ok {
			continue
		}
		text := e.Caption
		if text == "" {
			text = e.Title
		}
		out = append(out, &Result{
			ID:      e.ID,
			Title:   e.Title,
			Author:  e.Author.Name,
			Snippet: bestSnippet(text, terms, snippetLength),
			Score:   h.Score,
		})
	}
	return out, nil
}

func fieldMatch(term, field string, boost float64) bleveQuery.Query {
	q := bleve.NewMatchQuery(term)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

func fieldPrefix(term, field string, boost float64) bleveQuery.Query {
	q := bleve.NewPrefixQuery(term)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

// DocCount reports total documents in the index.
func (i *Index) DocCount() (int, error) {
	n, err := i.idx.DocCount()
	return int(n), err
}

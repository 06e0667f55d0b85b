package internal

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

type cachedDictionary struct {
	dictionary *dataDictionary
	loadedAt   time.Time
}

type schemaRegistry struct {
	source SchemaSource
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[int64]cachedDictionary
}

// NewSchemaRegistry creates a registry that loads data dictionaries from source and
// keeps them for ttl. A zero ttl caches until Invalidate.
func NewSchemaRegistry(source SchemaSource, ttl time.Duration) widgets.SchemaRegistry {
	return newSchemaRegistry(source, ttl)
}

func newSchemaRegistry(source SchemaSource, ttl time.Duration) *schemaRegistry {
	return &schemaRegistry{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[int64]cachedDictionary),
	}
}

func (r *schemaRegistry) DataDictionary(ctx context.Context, form *widgets.Form) (widgets.DataDictionary, error) {
	if form == nil {
		return nil, widgets.NewFormNotFoundError(0)
	}

	r.mu.RLock()
	entry, ok := r.cache[form.ID]
	r.mu.RUnlock()
	if ok && !r.expired(entry) {
		return entry.dictionary, nil
	}

	data, err := r.source.Fetch(ctx, form.IDString)
	if err != nil {
		if widgets.IsNotFoundError(err) {
			EmitSchemaLoad(ctx, "not_found")
		} else {
			EmitSchemaLoad(ctx, "error")
		}
		return nil, err
	}
	doc, err := parseSchemaDocument(form.IDString, data)
	if err != nil {
		zap.S().Warnw("form schema document is invalid", "form", form.ID, "id_string", form.IDString, "error", err)
		EmitSchemaLoad(ctx, "invalid")
		return nil, widgets.NewSchemaInvalidError(form.IDString, err)
	}
	dd := newDataDictionary(doc)

	r.mu.Lock()
	r.cache[form.ID] = cachedDictionary{dictionary: dd, loadedAt: r.now()}
	r.mu.Unlock()

	EmitSchemaLoad(ctx, "ok")
	zap.S().Debugw("loaded data dictionary", "form", form.ID, "id_string", form.IDString, "headers", len(dd.headers))
	return dd, nil
}

func (r *schemaRegistry) Invalidate(form *widgets.Form) {
	if form == nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, form.ID)
	r.mu.Unlock()
}

func (r *schemaRegistry) expired(entry cachedDictionary) bool {
	return r.ttl > 0 && r.now().Sub(entry.loadedAt) > r.ttl
}

package feed

import (
	"fmt"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang/glog"
)

// recently removed ids remembered so a late local upsert cannot resurrect them
const tombstoneCapacity = 64

// Renderer is the presentation side of the feed. It is called once per
// affected entry after a batch settles and owns nothing about ordering.
type Renderer interface {
	OnEntryChanged(entry models.FeedEntry)
	OnEntryRemoved(id string)
}

// Renderers fans notifications out to several renderers
type Renderers []Renderer

func (rs Renderers) OnEntryChanged(entry models.FeedEntry) {
	for _, r := range rs {
		r.OnEntryChanged(entry)
	}
}

func (rs Renderers) OnEntryRemoved(id string) {
	for _, r := range rs {
		r.OnEntryRemoved(id)
	}
}

// BatchResult summarizes one applied batch
type BatchResult struct {
	Applied int
	Skipped int
	Changed int
	Removed int
}

// Reconciler applies change-stream batches to the store
type Reconciler struct {
	store      *Store
	renderer   Renderer
	tombstones map[string]struct{}
	buried     []string
}

func NewReconciler(store *Store, renderer Renderer) *Reconciler {
	if renderer == nil {
		renderer = Renderers{}
	}
	return &Reconciler{
		store:      store,
		renderer:   renderer,
		tombstones: make(map[string]struct{}),
	}
}

// Store returns the store this reconciler mutates
func (r *Reconciler) Store() *Store {
	return r.store
}

// Apply applies the batch in delivery order. Added and modified records are
// both idempotent upserts. Malformed records are logged and skipped.
func (r *Reconciler) Apply(batch models.Batch) BatchResult {
	var result BatchResult
	var touched []string
	knewBefore := map[string]bool{}
	touch := func(id string) {
		if _, ok := knewBefore[id]; !ok {
			knewBefore[id] = r.store.Has(id)
			touched = append(touched, id)
		}
	}

	for i, ch := range batch.Changes {
		if err := r.applyOne(ch, touch); err != nil {
			glog.Warningf("[reconcile]skip record %d (%s %q) = %s\n", i, ch.Type, ch.ID, err)
			result.Skipped++
			continue
		}
		result.Applied++
	}

	for _, id := range touched {
		if entry, ok := r.store.Get(id); ok {
			r.renderer.OnEntryChanged(entry)
			r.store.MarkVisible(id)
			result.Changed++
		} else if knewBefore[id] {
			r.renderer.OnEntryRemoved(id)
			result.Removed++
		}
	}

	glog.V(1).Infof("[reconcile]batch records=%d applied=%d skipped=%d changed=%d removed=%d size=%d\n",
		len(batch.Changes), result.Applied, result.Skipped, result.Changed, result.Removed, r.store.Len())
	return result
}

func (r *Reconciler) applyOne(ch models.Change, touch func(string)) error {
	switch ch.Type {
	case models.ChangeRemoved:
		if ch.ID == "" {
			return fmt.Errorf("%w: missing id", models.ErrMalformedChange)
		}
		touch(ch.ID)
		r.store.Remove(ch.ID)
		r.bury(ch.ID)
	case models.ChangeAdded, models.ChangeModified:
		entry, err := models.DecodeEntry(ch.ID, ch.Doc)
		if err != nil {
			return err
		}
		touch(ch.ID)
		r.store.Upsert(entry)
		r.unbury(ch.ID)
	default:
		return fmt.Errorf("%w: unknown change type %q", models.ErrMalformedChange, ch.Type)
	}
	return nil
}

// ApplyLocal upserts an entry created on this client and renders it at once.
// Ids the stream already removed are left alone.
func (r *Reconciler) ApplyLocal(entry models.FeedEntry) bool {
	if _, ok := r.tombstones[entry.ID]; ok {
		glog.V(1).Infof("[reconcile]local upsert of removed %s ignored\n", entry.ID)
		return false
	}
	r.store.Upsert(entry)
	if settled, ok := r.store.Get(entry.ID); ok {
		r.renderer.OnEntryChanged(settled)
		r.store.MarkVisible(entry.ID)
	}
	return true
}

func (r *Reconciler) bury(id string) {
	if _, ok := r.tombstones[id]; ok {
		return
	}
	r.tombstones[id] = struct{}{}
	r.buried = append(r.buried, id)
	if len(r.buried) > tombstoneCapacity {
		delete(r.tombstones, r.buried[0])
		r.buried = r.buried[1:]
	}
}

func (r *Reconciler) unbury(id string) {
	if _, ok := r.tombstones[id]; !ok {
		return
	}
	delete(r.tombstones, id)
	for i, bid := range r.buried {
		if bid == id {
			r.buried = append(r.buried[:i], r.buried[i+1:]...)
			break
		}
	}
}

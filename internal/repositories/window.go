package repositories

import "github.com/anonto42/nano-midea/livechat/internal/models"

// windowDoc is one document of a windowed query result
type windowDoc struct {
	ID  string
	Doc models.MessageDoc
}

// diffWindow turns two consecutive results of the same windowed query into the
// change records a snapshot listener would report: removals first, then
// additions and modifications in the order of the new result.
func diffWindow(prev, next []windowDoc) []models.Change {
	before := make(map[string]models.MessageDoc, len(prev))
	for _, d := range prev {
		before[d.ID] = d.Doc
	}
	after := make(map[string]struct{}, len(next))
	for _, d := range next {
		after[d.ID] = struct{}{}
	}

	changes := []models.Change{}
	for _, d := range prev {
		if _, ok := after[d.ID]; !ok {
			changes = append(changes, models.Change{Type: models.ChangeRemoved, ID: d.ID})
		}
	}
	for _, d := range next {
		doc := d.Doc
		old, existed := before[d.ID]
		switch {
		case !existed:
			changes = append(changes, models.Change{Type: models.ChangeAdded, ID: d.ID, Doc: &doc})
		case !old.Equal(doc):
			changes = append(changes, models.Change{Type: models.ChangeModified, ID: d.ID, Doc: &doc})
		}
	}
	return changes
}

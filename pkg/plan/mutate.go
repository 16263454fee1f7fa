package plan

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// findCard scans the top-level cards list for the first card with the
// given id. Nested children are deliberately not searched: sub-cards are
// edited by replacing their parent wholesale.
func findCard(l *automerge.List, id string) (int, *automerge.Map, error) {
	for i := 0; i < l.Len(); i++ {
		v, err := l.Get(i)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read card %d: %w", i, err)
		}
		if v.Kind() != automerge.KindMap {
			continue
		}
		m := v.Map()
		idv, err := m.Get(keyID)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read card id: %w", err)
		}
		if idv.Kind() == automerge.KindStr && idv.Str() == id {
			return i, m, nil
		}
	}
	return 0, nil, nil
}

// AddCard appends the card to the cards list. If a card with the same id
// already exists its fields are replaced wholesale instead, so that two
// creates racing on one id converge on a single whole card rather than a
// duplicate or a field-level mixture.
func AddCard(doc *automerge.Doc, c Card) error {
	l, err := cardsList(doc)
	if err != nil {
		return err
	}
	_, existing, err := findCard(l, c.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := clearMap(existing); err != nil {
			return err
		}
		return encodeCardInto(existing, c)
	}
	m, err := appendCardMap(l)
	if err != nil {
		return err
	}
	return encodeCardInto(m, c)
}

// UpdateCard overwrites all fields of the first top-level card matching
// c.ID, re-encoding any children as a fresh sequence. Returns false
// without touching the document when the id is unknown.
func UpdateCard(doc *automerge.Doc, c Card) (bool, error) {
	l, err := cardsList(doc)
	if err != nil {
		return false, err
	}
	_, m, err := findCard(l, c.ID)
	if err != nil || m == nil {
		return false, err
	}
	if err := clearMap(m); err != nil {
		return false, err
	}
	if err := encodeCardInto(m, c); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteCard removes the first top-level card matching id, subtree
// included. Returns false when the id is unknown.
func DeleteCard(doc *automerge.Doc, id string) (bool, error) {
	l, err := cardsList(doc)
	if err != nil {
		return false, err
	}
	i, m, err := findCard(l, id)
	if err != nil || m == nil {
		return false, err
	}
	if err := l.Delete(i); err != nil {
		return false, fmt.Errorf("failed to delete card %q: %w", id, err)
	}
	return true, nil
}

// UpdateCardFields merges only the given fields into the first top-level
// card matching id and stamps updatedAt. The id itself is immutable and
// silently skipped. Returns false when the id is unknown.
func UpdateCardFields(doc *automerge.Doc, id string, fields map[string]any, updatedAt string) (bool, error) {
	l, err := cardsList(doc)
	if err != nil {
		return false, err
	}
	_, m, err := findCard(l, id)
	if err != nil || m == nil {
		return false, err
	}
	for k, v := range fields {
		if k == keyID {
			continue
		}
		if err := m.Set(k, v); err != nil {
			return false, fmt.Errorf("failed to set card field %q: %w", k, err)
		}
	}
	if err := m.Set(keyUpdatedAt, updatedAt); err != nil {
		return false, err
	}
	return true, nil
}

// SetName sets the activity name on the root map.
func SetName(doc *automerge.Doc, name string) error {
	return doc.RootMap().Set(keyName, name)
}

// SetDates sets the activity dates. endDate and startTime are only
// written when provided; a nil pointer leaves the stored value alone
// rather than clearing it.
func SetDates(doc *automerge.Doc, startDate string, endDate, startTime *string) error {
	root := doc.RootMap()
	if err := root.Set(keyStartDate, startDate); err != nil {
		return err
	}
	if endDate != nil {
		if err := root.Set(keyEndDate, *endDate); err != nil {
			return err
		}
	}
	if startTime != nil {
		if err := root.Set(keyStartTime, *startTime); err != nil {
			return err
		}
	}
	return nil
}

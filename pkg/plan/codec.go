package plan

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// Root document keys. Scalars live in the root map, cards in a
// replicated list of maps, children in a nested list per card, and so on
// recursively. Encode and Decode must stay exact inverses of each other:
// any asymmetry loses data on reload.
const (
	keyName      = "name"
	keyStartDate = "startDate"
	keyEndDate   = "endDate"
	keyStartTime = "startTime"
	keyCards     = "cards"
)

// cardsList returns the root cards list, creating it if the document has
// never held one.
func cardsList(doc *automerge.Doc) (*automerge.List, error) {
	v, err := doc.RootMap().Get(keyCards)
	if err != nil {
		return nil, fmt.Errorf("failed to read cards list: %w", err)
	}
	if v.Kind() == automerge.KindList {
		return v.List(), nil
	}
	if err := doc.RootMap().Set(keyCards, automerge.NewList()); err != nil {
		return nil, fmt.Errorf("failed to create cards list: %w", err)
	}
	v, err = doc.RootMap().Get(keyCards)
	if err != nil {
		return nil, fmt.Errorf("failed to read cards list: %w", err)
	}
	return v.List(), nil
}

// appendCardMap appends a fresh map to the list and returns a handle to
// it.
func appendCardMap(l *automerge.List) (*automerge.Map, error) {
	if err := l.Append(automerge.NewMap()); err != nil {
		return nil, fmt.Errorf("failed to append card: %w", err)
	}
	v, err := l.Get(l.Len() - 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read appended card: %w", err)
	}
	return v.Map(), nil
}

// encodeCardInto writes every field of the card into m, including a
// freshly-encoded children list when the card carries one.
func encodeCardInto(m *automerge.Map, c Card) error {
	if err := m.Set(keyID, c.ID); err != nil {
		return err
	}
	if err := m.Set(keyType, c.Type); err != nil {
		return err
	}
	if err := m.Set(keyCreatedAt, c.CreatedAt); err != nil {
		return err
	}
	if err := m.Set(keyUpdatedAt, c.UpdatedAt); err != nil {
		return err
	}
	if c.Date != "" {
		if err := m.Set(keyDate, c.Date); err != nil {
			return err
		}
	}
	for k, v := range c.Fields {
		if reservedKey(k) {
			continue
		}
		if err := m.Set(k, v); err != nil {
			return fmt.Errorf("failed to set card field %q: %w", k, err)
		}
	}
	if c.Children != nil {
		if err := m.Set(keyChildren, automerge.NewList()); err != nil {
			return fmt.Errorf("failed to create children list: %w", err)
		}
		v, err := m.Get(keyChildren)
		if err != nil {
			return fmt.Errorf("failed to read children list: %w", err)
		}
		children := v.List()
		for _, child := range c.Children {
			cm, err := appendCardMap(children)
			if err != nil {
				return err
			}
			if err := encodeCardInto(cm, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// clearMap deletes every key so the map can be re-encoded from scratch.
func clearMap(m *automerge.Map) error {
	keys, err := m.Keys()
	if err != nil {
		return fmt.Errorf("failed to list card keys: %w", err)
	}
	for _, k := range keys {
		if err := m.Delete(k); err != nil {
			return fmt.Errorf("failed to delete card key %q: %w", k, err)
		}
	}
	return nil
}

// Encode writes the whole activity value into the document. Existing
// cards are discarded; this is only suitable for seeding fresh
// documents, the actor mutates incrementally.
func Encode(doc *automerge.Doc, a Activity) error {
	root := doc.RootMap()
	if a.Name != "" {
		if err := root.Set(keyName, a.Name); err != nil {
			return err
		}
	}
	if a.StartDate != "" {
		if err := root.Set(keyStartDate, a.StartDate); err != nil {
			return err
		}
	}
	if a.EndDate != "" {
		if err := root.Set(keyEndDate, a.EndDate); err != nil {
			return err
		}
	}
	if a.StartTime != "" {
		if err := root.Set(keyStartTime, a.StartTime); err != nil {
			return err
		}
	}
	if err := root.Set(keyCards, automerge.NewList()); err != nil {
		return fmt.Errorf("failed to create cards list: %w", err)
	}
	l, err := cardsList(doc)
	if err != nil {
		return err
	}
	for _, c := range a.Cards {
		m, err := appendCardMap(l)
		if err != nil {
			return err
		}
		if err := encodeCardInto(m, c); err != nil {
			return err
		}
	}
	return nil
}

// Decode materializes the document into a plain Activity. Readers never
// see tombstones: deleted cards are simply absent.
func Decode(doc *automerge.Doc) (Activity, error) {
	a := Activity{Cards: []Card{}}
	root := doc.RootMap()
	var err error
	if a.Name, err = stringAt(root, keyName); err != nil {
		return a, err
	}
	if a.StartDate, err = stringAt(root, keyStartDate); err != nil {
		return a, err
	}
	if a.EndDate, err = stringAt(root, keyEndDate); err != nil {
		return a, err
	}
	if a.StartTime, err = stringAt(root, keyStartTime); err != nil {
		return a, err
	}
	v, err := root.Get(keyCards)
	if err != nil {
		return a, fmt.Errorf("failed to read cards list: %w", err)
	}
	if v.Kind() != automerge.KindList {
		return a, nil
	}
	a.Cards, err = decodeCards(v.List())
	return a, err
}

func decodeCards(l *automerge.List) ([]Card, error) {
	cards := []Card{}
	values, err := l.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read card list values: %w", err)
	}
	for _, v := range values {
		if v.Kind() != automerge.KindMap {
			continue
		}
		c, err := decodeCard(v.Map())
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func decodeCard(m *automerge.Map) (Card, error) {
	var c Card
	keys, err := m.Keys()
	if err != nil {
		return c, fmt.Errorf("failed to list card keys: %w", err)
	}
	for _, k := range keys {
		v, err := m.Get(k)
		if err != nil {
			return c, fmt.Errorf("failed to read card field %q: %w", k, err)
		}
		switch k {
		case keyID:
			c.ID = v.Str()
		case keyType:
			c.Type = v.Str()
		case keyCreatedAt:
			c.CreatedAt = v.Str()
		case keyUpdatedAt:
			c.UpdatedAt = v.Str()
		case keyDate:
			c.Date = v.Str()
		case keyChildren:
			if v.Kind() != automerge.KindList {
				continue
			}
			children, err := decodeCards(v.List())
			if err != nil {
				return c, err
			}
			c.Children = children
		default:
			if c.Fields == nil {
				c.Fields = make(map[string]any)
			}
			c.Fields[k] = v.Interface()
		}
	}
	return c, nil
}

func stringAt(m *automerge.Map, key string) (string, error) {
	v, err := m.Get(key)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", key, err)
	}
	if v.Kind() != automerge.KindStr {
		return "", nil
	}
	return v.Str(), nil
}

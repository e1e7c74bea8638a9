package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// New returns an empty entity of the given kind.
func New(kind Kind) (Entity, error) {
	switch kind {
	case KindDealer:
		return &Dealer{}, nil
	case KindListing:
		return &Listing{}, nil
	case KindReport:
		return &Report{}, nil
	}
	return nil, &ErrValidation{Msg: fmt.Sprintf("unknown entity kind %q", kind)}
}

// Encode marshals an entity to its JSON document form.
func Encode(ent Entity) ([]byte, error) {
	data, err := json.Marshal(ent)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ent.Kind(), err)
	}
	return data, nil
}

// Decode unmarshals raw JSON into an entity of the given kind.
func Decode(kind Kind, raw []byte) (Entity, error) {
	ent, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, ent); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return ent, nil
}

// DecodeList unmarshals a JSON array of entities of one kind.
func DecodeList(kind Kind, raw []byte) ([]Entity, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}
	out := make([]Entity, 0, len(items))
	for _, item := range items {
		ent, err := Decode(kind, item)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// ParseKind validates a kind taken from a URL path. Plural forms are accepted.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "dealer", "dealers":
		return KindDealer, nil
	case "listing", "listings":
		return KindListing, nil
	case "report", "reports":
		return KindReport, nil
	}
	return "", &ErrValidation{Msg: fmt.Sprintf("unknown entity kind %q", s)}
}

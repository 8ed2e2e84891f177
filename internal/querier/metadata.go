package querier

import (
	"context"

	"metaquery/internal/catalog"
)

// entryResolver is implemented by resolvers that can expose full catalog
// entries, not just descriptors. The catalog does; bare resolvers need not.
type entryResolver interface {
	Entry(name string) (catalog.Entry, error)
}

// Metadata combines provider attributes for a name with what the catalog
// knows about it. Catalog attributes win on conflict; frequency falls back
// from provider metadata to the catalog's declared frequency.
func (q *Querier) Metadata(ctx context.Context, name string) (map[string]string, error) {
	resolved, err := q.resolver.ResolveMany([]string{name})
	if err != nil {
		return nil, err
	}
	desc := resolved[0].Descriptor

	adapter, err := q.registry.Get(desc.Source)
	if err != nil {
		return nil, err
	}
	meta, err := adapter.Metadata(ctx, desc)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(meta)+6)
	for k, v := range meta {
		out[k] = v
	}
	out["name"] = name
	out["source"] = desc.Source
	out["symbol"] = desc.Symbol
	if desc.Field != nil {
		out["field"] = *desc.Field
	}
	if er, ok := q.resolver.(entryResolver); ok {
		entry, err := er.Entry(name)
		if err != nil {
			return nil, err
		}
		if entry.Description != "" {
			out["description"] = entry.Description
		}
		if entry.Unit != "" {
			out["unit"] = entry.Unit
		}
		if _, has := out["frequency"]; !has && entry.Frequency != "" {
			out["frequency"] = entry.Frequency
		}
	}
	return out, nil
}

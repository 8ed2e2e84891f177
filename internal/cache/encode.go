package cache

import (
	"encoding/json"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

// Wire documents shared by the durable backends. Dates travel as ISO strings
// so stored entries stay inspectable with ordinary tools.

type paramDoc struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type descriptorDoc struct {
	Source string     `json:"source"`
	Symbol string     `json:"symbol"`
	Field  *string    `json:"field,omitempty"`
	Path   *string    `json:"path,omitempty"`
	Params []paramDoc `json:"params,omitempty"`
	HasPar bool       `json:"has_params,omitempty"`
}

type pointDoc struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type spanDoc struct {
	Start  string     `json:"start"`
	End    string     `json:"end"`
	Points []pointDoc `json:"points"`
}

type recordDoc struct {
	Descriptor descriptorDoc `json:"descriptor"`
	Spans      []spanDoc     `json:"spans"`
}

func encodeDescriptor(d catalog.Descriptor) descriptorDoc {
	doc := descriptorDoc{Source: d.Source, Symbol: d.Symbol, Field: d.Field, Path: d.Path}
	if d.Params != nil {
		doc.HasPar = true
		doc.Params = make([]paramDoc, len(d.Params))
		for i, p := range d.Params {
			doc.Params[i] = paramDoc{Key: p.Key, Value: p.Value}
		}
	}
	return doc
}

func decodeDescriptor(doc descriptorDoc) catalog.Descriptor {
	d := catalog.Descriptor{Source: doc.Source, Symbol: doc.Symbol, Field: doc.Field, Path: doc.Path}
	if doc.HasPar {
		d.Params = make([]catalog.Param, len(doc.Params))
		for i, p := range doc.Params {
			d.Params[i] = catalog.Param{Key: p.Key, Value: p.Value}
		}
	}
	return d
}

func encodeDescriptorJSON(d catalog.Descriptor) ([]byte, error) {
	return json.Marshal(encodeDescriptor(d))
}

func decodeDescriptorJSON(raw []byte) (catalog.Descriptor, error) {
	var doc descriptorDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return catalog.Descriptor{}, err
	}
	return decodeDescriptor(doc), nil
}

func encodeSpanPoints(s span) ([]byte, error) {
	docs := make([]pointDoc, len(s.Points))
	for i, p := range s.Points {
		docs[i] = pointDoc{Date: timeseries.FormatDate(p.Date), Value: p.Value}
	}
	return json.Marshal(docs)
}

func decodeSpan(startISO, endISO string, raw []byte) (span, error) {
	start, err := timeseries.ParseDate(startISO)
	if err != nil {
		return span{}, err
	}
	end, err := timeseries.ParseDate(endISO)
	if err != nil {
		return span{}, err
	}
	var docs []pointDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return span{}, err
	}
	s := span{Start: start, End: end, Points: make([]timeseries.Point, 0, len(docs))}
	for _, pd := range docs {
		date, err := timeseries.ParseDate(pd.Date)
		if err != nil {
			return span{}, err
		}
		s.Points = append(s.Points, timeseries.Point{Date: date, Value: pd.Value})
	}
	return s, nil
}

func encodeRecord(r *record) ([]byte, error) {
	doc := recordDoc{Descriptor: encodeDescriptor(r.Descriptor), Spans: make([]spanDoc, len(r.Spans))}
	for i, s := range r.Spans {
		sd := spanDoc{
			Start:  timeseries.FormatDate(s.Start),
			End:    timeseries.FormatDate(s.End),
			Points: make([]pointDoc, len(s.Points)),
		}
		for j, p := range s.Points {
			sd.Points[j] = pointDoc{Date: timeseries.FormatDate(p.Date), Value: p.Value}
		}
		doc.Spans[i] = sd
	}
	return json.Marshal(doc)
}

func decodeRecord(raw []byte) (*record, error) {
	var doc recordDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	r := &record{Descriptor: decodeDescriptor(doc.Descriptor)}
	for _, sd := range doc.Spans {
		start, err := timeseries.ParseDate(sd.Start)
		if err != nil {
			return nil, err
		}
		end, err := timeseries.ParseDate(sd.End)
		if err != nil {
			return nil, err
		}
		s := span{Start: start, End: end, Points: make([]timeseries.Point, 0, len(sd.Points))}
		for _, pd := range sd.Points {
			date, err := timeseries.ParseDate(pd.Date)
			if err != nil {
				return nil, err
			}
			s.Points = append(s.Points, timeseries.Point{Date: date, Value: pd.Value})
		}
		r.Spans = append(r.Spans, s)
	}
	return r, nil
}

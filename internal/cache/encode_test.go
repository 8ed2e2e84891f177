package cache

import (
	"testing"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

func TestDescriptorJSON_PreservesPresence(t *testing.T) {
	// Absent vs. present-but-empty must survive the round trip, or two
	// different descriptors would read back as the same identity.
	cases := []catalog.Descriptor{
		{Source: "s", Symbol: "X"},
		{Source: "s", Symbol: "X", Field: catalog.StrPtr("")},
		{Source: "s", Symbol: "X", Field: catalog.StrPtr("close"), Path: catalog.StrPtr("a.csv")},
		{Source: "s", Symbol: "X", Params: []catalog.Param{}},
		{Source: "s", Symbol: "X", Params: []catalog.Param{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}},
	}
	for _, d := range cases {
		raw, err := encodeDescriptorJSON(d)
		if err != nil {
			t.Fatalf("encode %v: %v", d, err)
		}
		got, err := decodeDescriptorJSON(raw)
		if err != nil {
			t.Fatalf("decode %v: %v", d, err)
		}
		if !d.Equal(got) {
			t.Fatalf("round trip changed identity: %+v -> %+v", d, got)
		}
		if d.Fingerprint() != got.Fingerprint() {
			t.Fatalf("fingerprint changed for %v", d)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	r := &record{Descriptor: catalog.Descriptor{Source: "stats", Symbol: "GDP"}}
	r.add(timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 3), []timeseries.Point{
		{Date: timeseries.Date(2024, 1, 1), Value: 1},
		{Date: timeseries.Date(2024, 1, 3), Value: 3},
	})
	r.add(timeseries.Date(2024, 6, 1), timeseries.Date(2024, 6, 2), []timeseries.Point{
		{Date: timeseries.Date(2024, 6, 1), Value: 6},
	})

	raw, err := encodeRecord(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeRecord(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Descriptor.Equal(r.Descriptor) {
		t.Fatalf("descriptor changed: %+v", got.Descriptor)
	}
	if len(got.Spans) != 2 {
		t.Fatalf("want 2 spans, got %d", len(got.Spans))
	}
	pts, ok := got.covering(timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 3))
	if !ok || len(pts) != 2 {
		t.Fatalf("covering lookup after round trip failed: %v %v", pts, ok)
	}
}

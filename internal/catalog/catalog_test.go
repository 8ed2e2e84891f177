package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"metaquery/internal/catalog"
)

const sampleCatalog = `entries:
  - name: gdp_us
    source: stats
    symbol: GDP
    frequency: quarterly
    description: US gross domestic product
    unit: USD bn
  - name: spx_close
    source: market
    symbol: SPX
    field: close
    params:
      adjusted: "true"
      session: regular
  - name: rates_local
    source: localfile
    symbol: EURIBOR3M
    path: testdata/rates.csv
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())
	require.Equal(t, []string{"gdp_us", "spx_close", "rates_local"}, cat.Names())

	d, err := cat.Resolve("spx_close")
	require.NoError(t, err)
	require.Equal(t, "market", d.Source)
	require.Equal(t, "SPX", d.Symbol)
	require.NotNil(t, d.Field)
	require.Equal(t, "close", *d.Field)
	// Params keep declaration order.
	require.Equal(t, []catalog.Param{
		{Key: "adjusted", Value: "true"},
		{Key: "session", Value: "regular"},
	}, d.Params)

	d, err = cat.Resolve("rates_local")
	require.NoError(t, err)
	require.Nil(t, d.Field)
	require.NotNil(t, d.Path)
	require.Equal(t, "testdata/rates.csv", *d.Path)
}

func TestLoad_MergesFilesAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	one := writeCatalog(t, "entries:\n  - {name: a, source: s, symbol: A}\n")
	two := writeCatalog(t, "entries:\n  - {name: b, source: s, symbol: B}\n")

	cat, err := catalog.Load(one, two)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, cat.Names())

	dup := writeCatalog(t, "entries:\n  - {name: a, source: s, symbol: A2}\n")
	_, err = catalog.Load(one, dup)
	var de *catalog.DuplicateNameError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "a", de.Name)
}

func TestLoad_RejectsIncompleteEntry(t *testing.T) {
	t.Parallel()

	_, err := catalog.Load(writeCatalog(t, "entries:\n  - {name: a, source: s}\n"))
	require.ErrorContains(t, err, "symbol")
}

func TestResolve_UnknownName(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	_, err = cat.ResolveMany([]string{"gdp_us", "nope"})
	var nfe *catalog.NameNotFoundError
	require.ErrorAs(t, err, &nfe)
	require.Equal(t, "nope", nfe.Name)
}

func TestValidateSources(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	registered := map[string]bool{"stats": true, "market": true, "localfile": true}
	require.NoError(t, cat.ValidateSources(func(s string) bool { return registered[s] }))

	delete(registered, "market")
	err = cat.ValidateSources(func(s string) bool { return registered[s] })
	require.ErrorContains(t, err, "spx_close")
	require.ErrorContains(t, err, "market")
}

func TestFingerprint_DistinctDescriptorsNeverCollide(t *testing.T) {
	t.Parallel()

	descs := []catalog.Descriptor{
		{Source: "s", Symbol: "AAPL"},
		{Source: "s", Symbol: "AAPL", Field: catalog.StrPtr("close")},
		{Source: "s", Symbol: "AAPL", Field: catalog.StrPtr("")}, // empty != absent
		{Source: "s", Symbol: "AAPL:close"},                     // delimiter abuse
		{Source: "s:AAPL", Symbol: "close"},
		{Source: "s", Symbol: "AAPL", Path: catalog.StrPtr("close")},
		{Source: "s", Symbol: "AAPL", Params: []catalog.Param{}}, // empty != nil
		{Source: "s", Symbol: "AAPL", Params: []catalog.Param{{Key: "a", Value: "b"}}},
		{Source: "s", Symbol: "AAPL", Params: []catalog.Param{{Key: "ab", Value: ""}}},
		{Source: "s", Symbol: "AAPL", Params: []catalog.Param{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}},
		{Source: "s", Symbol: "AAPL", Params: []catalog.Param{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}},
	}

	seen := make(map[string]catalog.Descriptor, len(descs))
	for _, d := range descs {
		fp := d.Fingerprint()
		if prev, dup := seen[fp]; dup {
			t.Fatalf("fingerprint collision between %v and %v", prev, d)
		}
		seen[fp] = d
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	d := catalog.Descriptor{
		Source: "stats",
		Symbol: "GDP",
		Field:  catalog.StrPtr("value"),
		Params: []catalog.Param{{Key: "rev", Value: "latest"}},
	}
	require.Equal(t, d.Fingerprint(), d.Fingerprint())

	// Same content through a different pointer is the same identity.
	other := catalog.Descriptor{
		Source: "stats",
		Symbol: "GDP",
		Field:  catalog.StrPtr("value"),
		Params: []catalog.Param{{Key: "rev", Value: "latest"}},
	}
	require.True(t, d.Equal(other))
	require.Equal(t, d.Fingerprint(), other.Fingerprint())
}

func TestDescriptorEqual_PresenceMatters(t *testing.T) {
	t.Parallel()

	base := catalog.Descriptor{Source: "s", Symbol: "X"}
	withField := catalog.Descriptor{Source: "s", Symbol: "X", Field: catalog.StrPtr("")}
	require.False(t, base.Equal(withField))
	require.False(t, withField.Equal(base))

	nilParams := catalog.Descriptor{Source: "s", Symbol: "X"}
	emptyParams := catalog.Descriptor{Source: "s", Symbol: "X", Params: []catalog.Param{}}
	require.False(t, nilParams.Equal(emptyParams))
}

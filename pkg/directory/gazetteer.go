package directory

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed cities.yaml
var defaultCities []byte

// Gazetteer is a static, in-memory city list.
type Gazetteer struct {
	byKey  map[string]int
	cities []City
	keys   []string // folded names
	places []string // folded "name state country"
}

type gazetteerFile struct {
	Cities []City `yaml:"cities"`
}

// foldKey normalizes a name for matching: accents are stripped ("Zürich"
// matches "zurich"), case is folded and runs of spaces collapse.
// Casers and transformers are stateful, so each call gets its own.
func foldKey(name string) string {
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if s, _, err := transform.String(strip, name); err == nil {
		name = s
	}
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// DefaultGazetteer returns the built-in city list.
func DefaultGazetteer() (*Gazetteer, error) {
	return LoadGazetteer(bytes.NewReader(defaultCities))
}

// LoadGazetteerFile reads a YAML city list from path.
func LoadGazetteerFile(path string) (*Gazetteer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening gazetteer: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return LoadGazetteer(f)
}

// LoadGazetteer reads a YAML document of the form
//
//	cities:
//	  - name: Sydney
//	    utc_offset: "+10:00"
//	    dst_status: "YES"
//	    ...
//
// Every record must yield a valid projector and names must be unique.
func LoadGazetteer(r io.Reader) (*Gazetteer, error) {
	var doc gazetteerFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding gazetteer: %w", err)
	}

	g := &Gazetteer{byKey: make(map[string]int, len(doc.Cities))}
	for i := range doc.Cities {
		c := doc.Cities[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("gazetteer entry %d has no name", i)
		}
		if _, err := c.Projector(); err != nil {
			return nil, fmt.Errorf("gazetteer entry %d: %w", i, err)
		}
		key := foldKey(c.Name)
		if _, dup := g.byKey[key]; dup {
			return nil, fmt.Errorf("gazetteer lists %q twice", c.Name)
		}
		g.byKey[key] = len(g.cities)
		g.cities = append(g.cities, c)
		g.keys = append(g.keys, key)
		g.places = append(g.places, foldKey(c.Name+" "+c.State+" "+c.Country))
	}
	return g, nil
}

// Len returns the number of cities.
func (g *Gazetteer) Len() int { return len(g.cities) }

// Lookup implements Source with an exact, case-insensitive name match.
func (g *Gazetteer) Lookup(_ context.Context, name string) (*City, error) {
	i, ok := g.byKey[foldKey(name)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	c := g.cities[i]
	return &c, nil
}

// Search returns cities matching query, ignoring case and accents.
// Names starting with query come first, then names containing it, then
// cities whose state or country matches ("Japan" finds Tokyo). Gazetteer
// order is kept within each group. An empty query matches nothing.
// limit <= 0 means no limit.
func (g *Gazetteer) Search(query string, limit int) []City {
	q := foldKey(query)
	if q == "" {
		return nil
	}
	var prefix, inName, inPlace []City
	for i, key := range g.keys {
		switch {
		case strings.HasPrefix(key, q):
			prefix = append(prefix, g.cities[i])
		case strings.Contains(key, q):
			inName = append(inName, g.cities[i])
		case strings.Contains(g.places[i], q):
			inPlace = append(inPlace, g.cities[i])
		}
	}
	out := append(append(prefix, inName...), inPlace...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

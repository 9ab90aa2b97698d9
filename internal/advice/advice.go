// Package advice maps metric and finding keys to the remediation guidance
// shown on report cards and exports. A built-in catalog covers the standard
// keys; deployments can override or extend it from a YAML file.
package advice

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Entry is one guidance record.
type Entry struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Guidance string `yaml:"guidance"`
}

// Catalog resolves guidance by key. Lookups are case-insensitive.
type Catalog struct {
	entries map[string]Entry
}

var defaults = []Entry{
	{Key: "lcp", Label: "Largest Contentful Paint", Guidance: "Serve the hero image in a modern format, preload it, and cut server response time."},
	{Key: "cls", Label: "Cumulative Layout Shift", Guidance: "Reserve space for images, embeds and ads so late-loading content does not push the page around."},
	{Key: "inp", Label: "Interaction to Next Paint", Guidance: "Break up long main-thread tasks and defer non-essential scripts so taps respond quickly."},
	{Key: "fcp", Label: "First Contentful Paint", Guidance: "Inline critical CSS and remove render-blocking resources from the initial viewport."},
	{Key: "performance", Label: "Performance Score", Guidance: "Work through the failing audits below in order of estimated savings."},
	{Key: "render-blocking", Label: "Render-Blocking Resources", Guidance: "Defer or async non-critical scripts and inline the CSS needed for first paint."},
	{Key: "server-response", Label: "Server Response Time", Guidance: "Add page caching or upgrade hosting; the server should answer in under 600ms."},
	{Key: "page-weight", Label: "Page Weight", Guidance: "Compress images, enable text compression and drop unused scripts to shrink the page."},
	{Key: "requests", Label: "Request Count", Guidance: "Combine assets and remove third-party tags to cut the number of round trips."},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(defaults))}
	for _, e := range defaults {
		c.entries[e.Key] = e
	}
	return c
}

// Load reads a catalog from a YAML file and merges it over the defaults.
// File entries win on key collisions.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "advice: read catalog %s", path)
	}

	// The YAML has a top-level "advice" key.
	var wrapper struct {
		Advice []Entry `yaml:"advice"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "advice: parse catalog")
	}

	c := Default()
	for _, e := range wrapper.Advice {
		key := strings.ToLower(strings.TrimSpace(e.Key))
		if key == "" {
			return nil, eris.New("advice: catalog entry without key")
		}
		e.Key = key
		if prev, ok := c.entries[key]; ok {
			if e.Label == "" {
				e.Label = prev.Label
			}
			if e.Guidance == "" {
				e.Guidance = prev.Guidance
			}
		}
		c.entries[key] = e
	}
	return c, nil
}

// Guidance returns the remediation text for a key, or "" when the catalog
// has none.
func (c *Catalog) Guidance(key string) string {
	if c == nil {
		return ""
	}
	e, ok := c.entries[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return ""
	}
	return e.Guidance
}

// Label returns the display label for a key, falling back to the key itself.
func (c *Catalog) Label(key string) string {
	if c != nil {
		if e, ok := c.entries[strings.ToLower(strings.TrimSpace(key))]; ok && e.Label != "" {
			return e.Label
		}
	}
	return key
}

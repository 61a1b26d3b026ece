// Package framework matches user keywords against a catalog of writing
// frameworks (content blueprints for the target platform). Matching never
// fails: with no overlap the default framework is recommended.
package framework

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed frameworks.yaml
var catalogRaw []byte

// DefaultName is the framework used when nothing matches or matching is
// unavailable.
const DefaultName = "通用框架"

// Framework is one entry in the catalog
type Framework struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Guidance    string   `yaml:"guidance"`
	Tags        []string `yaml:"tags"`
}

// Match is a scored catalog entry for a keyword query
type Match struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type Catalog struct {
	frameworks []Framework
}

// NewCatalog loads the embedded framework catalog
func NewCatalog() (*Catalog, error) {
	var doc struct {
		Frameworks []Framework `yaml:"frameworks"`
	}
	if err := yaml.Unmarshal(catalogRaw, &doc); err != nil {
		return nil, goerr.Wrap(err, "failed to parse framework catalog")
	}
	if len(doc.Frameworks) == 0 {
		return nil, goerr.New("framework catalog is empty")
	}

	return &Catalog{frameworks: doc.Frameworks}, nil
}

// Frameworks returns the full catalog
func (c *Catalog) Frameworks() []Framework {
	return c.frameworks
}

// Get looks up a framework by name, or nil
func (c *Catalog) Get(name string) *Framework {
	for i := range c.frameworks {
		if c.frameworks[i].Name == name {
			return &c.frameworks[i]
		}
	}
	return nil
}

// Default returns the fallback recommendation
func Default() *Match {
	return &Match{
		Name:        DefaultName,
		Description: "适合各类内容创作",
		Score:       0.5,
	}
}

// MatchKeywords scores every framework by how many keywords appear in its
// searchable text, best first. The default framework leads the result when
// nothing overlaps.
func (c *Catalog) MatchKeywords(keywords []string) []*Match {
	if len(keywords) == 0 {
		return []*Match{Default()}
	}

	matches := make([]*Match, 0, len(c.frameworks))
	for _, fw := range c.frameworks {
		haystack := strings.ToLower(strings.Join(append([]string{fw.Name, fw.Description, fw.Guidance}, fw.Tags...), " "))

		hits := 0
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(haystack, kw) {
				hits++
			}
		}

		if hits > 0 {
			matches = append(matches, &Match{
				Name:        fw.Name,
				Description: fw.Description,
				Score:       float64(hits),
			})
		}
	}

	if len(matches) == 0 {
		return []*Match{Default()}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

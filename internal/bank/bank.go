// Package bank holds the embedded fallback review templates. The bank is
// the last step of the generation pipeline and never fails: any language
// code without its own template set falls back to English.
package bank

import (
	_ "embed"
	"fmt"
	"math/rand"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

const placeholder = "{business}"

// aliases maps long-form language names to the codes used as YAML keys.
var aliases = map[string]string{
	"english":  "en",
	"hindi":    "hi",
	"gujarati": "gu",
}

// Bank serves randomly chosen, name-substituted review templates.
type Bank struct {
	templates map[string][]string
	intn      func(n int) int
}

// New parses the embedded template file. It fails only on a broken embed,
// which is a build defect rather than a runtime condition.
func New() (*Bank, error) {
	var templates map[string][]string
	if err := yaml.Unmarshal(templatesYAML, &templates); err != nil {
		return nil, fmt.Errorf("bank: parse embedded templates: %w", err)
	}
	if len(templates["en"]) == 0 {
		return nil, fmt.Errorf("bank: embedded templates missing english set")
	}
	return &Bank{templates: templates, intn: rand.Intn}, nil
}

// Fallback returns a template for the language with the business name
// substituted in. Unknown or empty language codes get an English template.
func (b *Bank) Fallback(businessName, languageCode string) string {
	code := strings.ToLower(strings.TrimSpace(languageCode))
	if alias, ok := aliases[code]; ok {
		code = alias
	}
	set := b.templates[code]
	if len(set) == 0 {
		set = b.templates["en"]
	}
	tmpl := set[b.intn(len(set))]
	return strings.ReplaceAll(tmpl, placeholder, businessName)
}

// Languages lists the language codes with a dedicated template set.
func (b *Bank) Languages() []string {
	out := make([]string, 0, len(b.templates))
	for code := range b.templates {
		out = append(out, code)
	}
	return out
}

// Package msgcat holds the bot's reply text. Messages live in an embedded
// YAML file as nested keys and render through text/template, so operators can
// reword replies with an override directory instead of a rebuild.
package msgcat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	_ "embed"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultMessages []byte

// Catalog maps flattened dot-keys to template text.
type Catalog struct {
	mu   sync.RWMutex
	data map[string]string
}

// New loads the embedded defaults, then applies YAML files from overrideDir
// when given. Override files are applied in name order; later files win.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]string)}
	flat, err := flatten(defaultMessages)
	if err != nil {
		return nil, fmt.Errorf("embedded messages: %w", err)
	}
	c.apply(flat)

	if strings.TrimSpace(overrideDir) != "" {
		if err := c.loadDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read message dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		c.apply(flat)
	}
	return nil
}

func (c *Catalog) apply(flat map[string]string) {
	c.mu.Lock()
	for k, v := range flat {
		c.data[k] = v
	}
	c.mu.Unlock()
}

// Render executes the template stored under key with data. Unknown keys and
// missing template fields are errors so broken replies surface in tests.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	text, ok := c.data[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("message not found: %s", key)
	}
	t, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// MustRender renders the key and falls back to the key itself on failure, so
// a missing message never drops a reply on the floor.
func (c *Catalog) MustRender(key string, data any) string {
	out, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return out
}

func flatten(raw []byte) (map[string]string, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	flat := make(map[string]string)
	if err := walk(tree, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func walk(node any, prefix string, out map[string]string) error {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := walk(child, key, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		if prefix == "" {
			return fmt.Errorf("top-level string without key")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("non-string leaf at %s: %T", prefix, v)
	}
}

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Definition is one YAML template definition for the text export
// format.
type Definition struct {
	Name string `yaml:"name"`
	Body string `yaml:"body"`
}

// DefaultTemplateName is the definition used when no template is
// requested explicitly.
const DefaultTemplateName = "default"

const defaultBody = `{{.SessionName}}
Generated on: {{.GeneratedAt}}
Total Segments: {{len .Segments}}

{{range .Segments}}[{{.Start}} - {{.End}}] {{.Speaker}}: {{.Text}}
{{end}}`

// TemplateLoader loads and optionally hot-reloads text export
// templates from YAML files. The built-in default is always available
// and can be shadowed by a definition named "default".
type TemplateLoader struct {
	dir string

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewTemplateLoader creates a loader for the given directory. An empty
// directory name serves only the built-in default.
func NewTemplateLoader(dir string) *TemplateLoader {
	l := &TemplateLoader{
		dir:       dir,
		templates: make(map[string]*template.Template),
	}
	l.templates[DefaultTemplateName] = template.Must(
		template.New(DefaultTemplateName).Parse(defaultBody))
	return l
}

// LoadAll loads all .yaml and .yml files from the configured directory.
func (l *TemplateLoader) LoadAll() error {
	if l.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read template dir %q: %w", l.dir, err)
	}

	result := make(map[string]*template.Template)
	result[DefaultTemplateName] = template.Must(
		template.New(DefaultTemplateName).Parse(defaultBody))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		name, tmpl, err := l.loadFile(path)
		if err != nil {
			return fmt.Errorf("load %q: %w", path, err)
		}
		result[name] = tmpl
	}

	l.mu.Lock()
	l.templates = result
	l.mu.Unlock()

	return nil
}

// Get returns a compiled template by name.
func (l *TemplateLoader) Get(name string) (*template.Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tmpl, ok := l.templates[name]
	return tmpl, ok
}

func (l *TemplateLoader) loadFile(path string) (string, *template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return "", nil, fmt.Errorf("parse YAML: %w", err)
	}
	if def.Name == "" {
		def.Name = filepath.Base(path)
	}
	if def.Body == "" {
		return "", nil, fmt.Errorf("template %q has no body", def.Name)
	}

	tmpl, err := template.New(def.Name).Parse(def.Body)
	if err != nil {
		return "", nil, fmt.Errorf("parse template body: %w", err)
	}
	return def.Name, tmpl, nil
}

// WatchAndReload starts watching the template directory for changes and reloads.
// This blocks until the done channel is closed.
func (l *TemplateLoader) WatchAndReload(done <-chan struct{}) error {
	if l.dir == "" {
		<-done
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ext := filepath.Ext(event.Name)
				if ext == ".yaml" || ext == ".yml" {
					l.LoadAll()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Package i18n resolves bot replies from YAML catalogs keyed by language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

// DefaultLanguage is used when the requested language has no catalog.
const DefaultLanguage = "en"

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	Tf(key string, args ...any) string
	Lang() string
}

// Manager stores all available translations.
type Manager struct {
	translations catalog
	defaultLang  string
}

// Load reads the catalogs compiled into the binary.
func Load(defaultLang string) (*Manager, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: open embedded catalogs: %w", err)
	}
	return LoadFS(sub, defaultLang)
}

// LoadFromDir loads catalogs from a directory on disk.
func LoadFromDir(dir, defaultLang string) (*Manager, error) {
	return LoadFS(os.DirFS(dir), defaultLang)
}

// LoadFS loads every YAML file at the root of fsys.
func LoadFS(fsys fs.FS, defaultLang string) (*Manager, error) {
	translations, err := parseFS(fsys)
	if err != nil {
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	defaultLang = strings.ToLower(defaultLang)

	if _, ok := translations[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{translations: translations, defaultLang: defaultLang}, nil
}

// Translator returns a translator for lang, falling back to the default language.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := normalize(lang)
	if norm == "" || m.translations[norm] == nil {
		norm = m.defaultLang
	}

	return translator{
		lang:         norm,
		fallback:     m.defaultLang,
		translations: m.translations,
	}
}

// Languages returns all loaded languages.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	languages := make([]string, 0, len(m.translations))
	for lang := range m.translations {
		languages = append(languages, lang)
	}
	return languages
}

// normalize turns Telegram language codes like "ru-RU" or "pt-br" into catalog keys.
func normalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}

	tag, err := language.Parse(lang)
	if err != nil {
		lang = strings.ToLower(lang)
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		return lang
	}

	base, _ := tag.Base()
	return base.String()
}

type translator struct {
	lang         string
	fallback     string
	translations catalog
}

func (t translator) Lang() string {
	return t.lang
}

// T looks key up in the translator's language, then the default one, then returns key itself.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	for _, lang := range [...]string{t.lang, t.fallback} {
		if value := t.translations[lang][key]; value != "" {
			return value
		}
	}
	return key
}

func (t translator) Tf(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

// catalog maps language to flattened "section.key" entries.
type catalog map[string]map[string]string

func parseFS(fsys fs.FS) (catalog, error) {
	names, err := fs.Glob(fsys, "*.y*ml")
	if err != nil {
		return nil, fmt.Errorf("i18n: read catalogs: %w", err)
	}

	out := make(catalog)
	found := false
	for _, name := range names {
		if ext := path.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		found = true

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("i18n: read file %s: %w", name, err)
		}

		var doc map[string]yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
		}
		for lang, node := range doc {
			if err := out.add(normalize(lang), "", &node); err != nil {
				return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("i18n: no yaml files found")
	}
	return out, nil
}

// add walks a mapping node and stores its scalar leaves under dotted keys.
// Files for the same language are merged; later files win on duplicate keys.
func (c catalog) add(lang, prefix string, node *yaml.Node) error {
	if lang == "" || node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		switch value.Kind {
		case yaml.ScalarNode:
			if c[lang] == nil {
				c[lang] = make(map[string]string)
			}
			c[lang][key] = value.Value
		case yaml.MappingNode:
			if err := c.add(lang, key, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %s.%s: expected text or a nested section", lang, key)
		}
	}
	return nil
}

// Package i18n is the key-value translation store behind the locale
// switcher.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
	"golang.org/x/text/language"
)

//go:embed locales/*.jsonc
var localeFS embed.FS

// DefaultLocale is used when nothing better matches.
const DefaultLocale = "en"

// Store holds flattened messages per locale. It is read-only after Load and
// safe for concurrent use.
type Store struct {
	def      string
	locales  []string
	messages map[string]map[string]string
	matcher  language.Matcher
}

// Load reads the embedded locale files.
func Load(def string) (*Store, error) {
	return LoadFS(localeFS, "locales", def)
}

// LoadFS reads every <locale>.jsonc file in dir. Files may contain comments
// and trailing commas; nested objects are flattened into dotted keys.
func LoadFS(fsys fs.FS, dir, def string) (*Store, error) {
	if def == "" {
		def = DefaultLocale
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	s := &Store{def: def, messages: make(map[string]map[string]string)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".jsonc" {
			continue
		}
		locale := strings.TrimSuffix(name, ".jsonc")
		if _, err := language.Parse(locale); err != nil {
			return nil, fmt.Errorf("locale file %s: %w", name, err)
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		msgs, err := parseMessages(data)
		if err != nil {
			return nil, fmt.Errorf("locale file %s: %w", name, err)
		}
		s.messages[locale] = msgs
		s.locales = append(s.locales, locale)
	}
	if _, ok := s.messages[def]; !ok {
		return nil, fmt.Errorf("default locale %q has no messages", def)
	}

	// The default goes first so the matcher falls back to it.
	sort.Slice(s.locales, func(i, j int) bool {
		if s.locales[i] == def || s.locales[j] == def {
			return s.locales[i] == def
		}
		return s.locales[i] < s.locales[j]
	})
	tags := make([]language.Tag, len(s.locales))
	for i, l := range s.locales {
		tags[i] = language.Make(l)
	}
	s.matcher = language.NewMatcher(tags)
	return s, nil
}

func parseMessages(data []byte) (map[string]string, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if err := flatten("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) error {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %s: expected string or object, got %T", key, v)
		}
	}
	return nil
}

// Default returns the fallback locale.
func (s *Store) Default() string { return s.def }

// Locales lists the supported locales, default first.
func (s *Store) Locales() []string {
	out := make([]string, len(s.locales))
	copy(out, s.locales)
	return out
}

// Supported reports whether locale has its own messages.
func (s *Store) Supported(locale string) bool {
	_, ok := s.messages[locale]
	return ok
}

// T translates key. Missing keys fall back to the default locale and then to
// the key itself.
func (s *Store) T(locale, key string) string {
	if msg, ok := s.messages[locale][key]; ok {
		return msg
	}
	if msg, ok := s.messages[s.def][key]; ok {
		return msg
	}
	return key
}

// Tf translates key and formats it with args.
func (s *Store) Tf(locale, key string, args ...any) string {
	return fmt.Sprintf(s.T(locale, key), args...)
}

// Match picks the best supported locale for an Accept-Language header.
func (s *Store) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return s.def
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return s.def
	}
	_, idx, conf := s.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(s.locales) {
		return s.def
	}
	return s.locales[idx]
}

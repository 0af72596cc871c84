package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator holds the messages of one language.
type Translator struct {
	translations map[string]string
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatted with args. Unknown keys come back as-is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Catalog picks a Translator from an Accept-Language header.
// The first language passed to NewCatalog is the fallback.
type Catalog struct {
	matcher     language.Matcher
	translators []*Translator
}

func NewCatalog(fsys fs.FS, langCodes ...string) (*Catalog, error) {
	if len(langCodes) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}
	tags := make([]language.Tag, 0, len(langCodes))
	c := &Catalog{}
	for _, code := range langCodes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", code, err)
		}
		filePath := path.Join("locales", code+".yaml")
		data, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
		}
		tr, err := newTranslatorFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}
		tags = append(tags, tag)
		c.translators = append(c.translators, tr)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// Default loads the embedded English and Persian messages.
func Default() (*Catalog, error) {
	return NewCatalog(LocalesFS, "en", "fa")
}

// For returns the best match for an Accept-Language header value.
func (c *Catalog) For(acceptLanguage string) *Translator {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.translators[0]
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(c.translators) {
		return c.translators[0]
	}
	return c.translators[idx]
}

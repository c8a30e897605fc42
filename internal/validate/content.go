package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"

	"github.com/FranksOps/grounder/internal/extract"
	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/model"
)

// ContentConfig configures the content stage.
type ContentConfig struct {
	MinWords            int
	MaxBoilerplateRatio float64
	// AllowedLanguages are ISO 639-1 codes. Empty accepts any language.
	AllowedLanguages []string
	WordsPerMinute   int
}

// DefaultContentConfig is the base content policy.
func DefaultContentConfig() ContentConfig {
	return ContentConfig{
		MinWords:            50,
		MaxBoilerplateRatio: 0.7,
		WordsPerMinute:      200,
	}
}

// ContentResult is what the content stage extracted from a passing page.
type ContentResult struct {
	Doc      *extract.Document
	Metadata model.Metadata
}

// ContentValidator extracts main text and judges its quality.
type ContentValidator struct {
	cfg       ContentConfig
	extractor extract.Extractor
	languages map[string]struct{}
}

// NewContentValidator fills zero-valued cfg fields from DefaultContentConfig.
func NewContentValidator(cfg ContentConfig, extractor extract.Extractor) *ContentValidator {
	def := DefaultContentConfig()
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.MaxBoilerplateRatio <= 0 {
		cfg.MaxBoilerplateRatio = def.MaxBoilerplateRatio
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = def.WordsPerMinute
	}
	if extractor == nil {
		extractor = extract.NewHTMLExtractor()
	}
	v := &ContentValidator{cfg: cfg, extractor: extractor}
	if len(cfg.AllowedLanguages) > 0 {
		v.languages = make(map[string]struct{}, len(cfg.AllowedLanguages))
		for _, l := range cfg.AllowedLanguages {
			v.languages[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
		}
	}
	return v
}

// Validate extracts page and applies word count, boilerplate and language
// checks. It does no network I/O, so every failure is a rejection.
func (v *ContentValidator) Validate(page *fetch.Page) (model.ValidationOutcome, *ContentResult, error) {
	out := model.ValidationOutcome{CheckedAt: time.Now().UTC()}

	doc, err := v.extractor.Extract(page.Body, page.ContentType)
	if err != nil {
		rerr := &model.Error{Kind: model.KindRejection, Code: model.CodeExtractionFailed, Reason: "extraction failed", Err: err}
		return fail(out, rerr), nil, rerr
	}

	words := len(strings.Fields(doc.Text))
	if words < v.cfg.MinWords {
		rerr := model.Reject(model.CodeTooShort, fmt.Sprintf("word count %d below minimum %d", words, v.cfg.MinWords))
		return fail(out, rerr), nil, rerr
	}
	if doc.BoilerplateRatio > v.cfg.MaxBoilerplateRatio {
		rerr := model.Reject(model.CodeBoilerplate, fmt.Sprintf("boilerplate ratio %.2f above %.2f", doc.BoilerplateRatio, v.cfg.MaxBoilerplateRatio))
		return fail(out, rerr), nil, rerr
	}

	lang := DetectLanguage(doc.Text, doc.Lang)
	if v.languages != nil {
		if lang == "" {
			rerr := model.Reject(model.CodeLanguage, "language undetermined")
			return fail(out, rerr), nil, rerr
		}
		if _, ok := v.languages[lang]; !ok {
			rerr := model.Reject(model.CodeLanguage, fmt.Sprintf("language %q not allowed", lang))
			return fail(out, rerr), nil, rerr
		}
	}

	reading := (words + v.cfg.WordsPerMinute - 1) / v.cfg.WordsPerMinute
	if reading < 1 {
		reading = 1
	}

	out.Passed = true
	return out, &ContentResult{
		Doc: doc,
		Metadata: model.Metadata{
			Author:      doc.Author,
			Date:        doc.Published,
			Language:    lang,
			WordCount:   words,
			ReadingTime: reading,
		},
	}, nil
}

// DetectLanguage returns the ISO 639-1 code of text, falling back to the
// page's declared language when detection is unreliable.
func DetectLanguage(text, declared string) string {
	info := whatlanggo.Detect(text)
	if info.IsReliable() {
		if code := info.Lang.Iso6391(); code != "" {
			return code
		}
	}
	return strings.ToLower(declared)
}

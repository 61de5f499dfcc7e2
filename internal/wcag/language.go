package wcag

import (
	"fmt"
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
	"golang.org/x/text/language"
)

func checkLanguage(c *evalContext) []finding {
	root := c.tree.Root()
	lang, _ := root.Prop("lang")
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return []finding{{
			kind:    entity.KindMissingLanguage,
			node:    root,
			message: "Page has no lang attribute",
			fix:     `Add a lang attribute to the html element, e.g. <html lang="en">`,
		}}
	}
	if err := ValidateLanguageTag(lang); err != nil {
		return []finding{{
			kind:    entity.KindMissingLanguage,
			node:    root,
			message: fmt.Sprintf("Page lang attribute %q is not a valid language tag", lang),
			fix:     "Use a BCP 47 language tag such as en, en-US or fr",
		}}
	}
	return nil
}

// ValidateLanguageTag accepts well-formed, known BCP 47 tags whose primary
// subtag has two or three letters.
func ValidateLanguageTag(tag string) error {
	primary, _, _ := strings.Cut(tag, "-")
	if n := len(primary); n < 2 || n > 3 {
		return fmt.Errorf("primary subtag %q must have 2 or 3 letters", primary)
	}
	for _, r := range primary {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return fmt.Errorf("primary subtag %q must be alphabetic", primary)
		}
	}
	if _, err := language.Parse(tag); err != nil {
		return err
	}
	return nil
}

package outreach

import (
	"strings"

	"github.com/hrygo/telecopilot/internal/model"
)

// personalize replaces {name}, {first_name}, {last_name}, and {full_name}
// in template using r's stored names. An empty first name falls back to
// the literal "there". full_name is "first last", or just "first" when
// last is empty. Replacement is a single scalar pass: a substitution's
// output is never re-scanned for further placeholders.
func personalize(template string, r model.OutreachRecipient) string {
	first := r.FirstName
	if first == "" {
		first = "there"
	}
	full := first
	if r.LastName != "" {
		full = first + " " + r.LastName
	}

	replacer := strings.NewReplacer(
		"{name}", first,
		"{first_name}", first,
		"{last_name}", r.LastName,
		"{full_name}", full,
	)
	return replacer.Replace(template)
}

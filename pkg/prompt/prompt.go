// Package prompt renders translation prompt templates.
package prompt

import (
	"regexp"
)

// DefaultTemplate is the prompt used when a profile has none.
const DefaultTemplate = `You are a professional translator. Translate the text inside <translate_input> into {{target_language}}.
Keep the meaning, tone and formatting of the original. Do not add explanations, notes or quotes.
Output only the translation.`

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces every {{name}} in tpl with vars[name]. Unknown names
// render as the empty string.
func Render(tpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		return vars[m[2:len(m)-2]]
	})
}

// Vars builds the variable set of a translation request.
func Vars(text, targetLanguage string) map[string]string {
	return map[string]string{
		"text":            text,
		"target_language": targetLanguage,
	}
}

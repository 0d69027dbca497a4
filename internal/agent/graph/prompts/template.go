package prompts

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Template is prompt text with {name} placeholders and the variables it
// requires at format time.
type Template struct {
	text     string
	required []string
}

func NewTemplate(text string, required ...string) *Template {
	return &Template{text: text, required: slices.Clone(required)}
}

func (t *Template) Text() string { return t.text }

// Required returns the variables that must be supplied to Format.
func (t *Template) Required() []string { return slices.Clone(t.required) }

// Format renders the template through the eino prompt component so prompt
// callbacks fire. It fails when a required variable is absent from vars or
// when the text references a variable that vars does not supply.
func (t *Template) Format(ctx context.Context, vars map[string]any) (string, error) {
	var missing []string
	for _, name := range t.required {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required variables: %v", missing)
	}
	for _, name := range placeholders(t.text) {
		if _, ok := vars[name]; !ok {
			return "", fmt.Errorf("template references unknown variable %q", name)
		}
	}

	tpl := prompt.FromMessages(schema.FString, schema.SystemMessage(t.text))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format template: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("format template: empty result")
	}
	return msgs[0].Content, nil
}

// placeholders returns the field names referenced by {name} replacement
// fields. Doubled braces are literals.
func placeholders(text string) []string {
	var names []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if i+1 < len(text) && text[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(text[i:], '}')
		if end < 0 {
			break
		}
		field := text[i+1 : i+end]
		if cut := strings.IndexAny(field, ".[:!"); cut >= 0 {
			field = field[:cut]
		}
		if field != "" && !slices.Contains(names, field) {
			names = append(names, field)
		}
		i += end
	}
	return names
}

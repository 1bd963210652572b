// Package keywords resolves ${name} placeholders against the pipeline
// environment. Commands, messages and file contents all use the same
// placeholder syntax.
package keywords

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

var keywordPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve substitutes every ${name} placeholder in s with the string form
// of the environment field name. An unresolved placeholder is a
// configuration error: it is reported here, at substitution time, rather
// than surfacing later as a malformed command or message.
func Resolve(s string, env *pipeline.Env) (string, error) {
	var missing []string
	resolved := keywordPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		value, ok := env.Lookup(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return fmt.Sprint(value)
	})
	if len(missing) > 0 {
		return "", errors.Precondition(
			fmt.Sprintf("keywords [%s] in %q", strings.Join(missing, ", "), s),
			errors.ErrUnresolvedKeyword)
	}
	return resolved, nil
}

// ResolveKnown substitutes the placeholders that have environment values
// and leaves the rest untouched. Used for file trees, where templates may
// carry placeholders owned by the external program itself.
func ResolveKnown(s string, env *pipeline.Env) string {
	return keywordPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		value, ok := env.Lookup(name)
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}

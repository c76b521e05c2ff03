package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
)

// template compiles input into a Func that replaces {{name}} placeholders.
// Run variables are substituted once, here. Remaining placeholders are
// looked up in the session at run time: Ephemeral and User scope first,
// then Simulation scope. A placeholder found nowhere fails the cycle with
// session.KeyNotFoundError.
func template(input string, vars map[string]string) dsl.Func[string] {
	resolved := config.ResolveVariables(input, vars)
	names := config.Placeholders(resolved)
	if len(names) == 0 {
		return dsl.Const(resolved)
	}

	return func(s *session.Session) (string, error) {
		result := resolved
		for _, name := range names {
			v, err := s.Get(name)
			if errors.Is(err, session.ErrKeyNotFound) {
				v, err = s.Global(name)
			}
			if err != nil {
				return "", err
			}
			result = strings.ReplaceAll(result, "{{"+name+"}}", render(v))
		}
		return result, nil
	}
}

// render formats a session value for substitution into text.
func render(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case gjson.Result:
		return val.String()
	case *transport.Response:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

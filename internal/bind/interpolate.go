package bind

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentic-research/loom/internal/nodeset"
)

// Interpolate expands {expr} placeholders against the current frame.
// {#index} is the current index and {{ is a literal brace.
func Interpolate(c *Context, text string) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '{' {
			b.WriteByte(ch)
			continue
		}
		if i+1 < len(text) && text[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		end := strings.IndexByte(text[i+1:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", text)
		}
		expr := strings.TrimSpace(text[i+1 : i+1+end])
		i += end + 1

		if expr == "#index" {
			b.WriteString(strconv.Itoa(c.Index()))
			continue
		}
		v, _, err := Evaluate(c, expr)
		if err != nil {
			return "", err
		}
		b.WriteString(nodeset.String(v))
	}
	return b.String(), nil
}

package scheduler

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultCapture is what a bare `{name}` token captures: a run of
// non-whitespace characters.
const defaultCapture = `[^\s]+`

// Pattern is a compiled trigger pattern for the auto-responder (§4.4):
// `{name}` and `{name:regex}` tokens become named
// capture groups, every other character is matched literally, and the
// whole thing is anchored so a match must consume the entire message.
type Pattern struct {
	source string
	re     *regexp.Regexp
	names  []string
}

var tokenRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([^{}]*))?\}`)

// CompilePattern tokenizes src per §4.4's trigger grammar.
func CompilePattern(src string) (*Pattern, error) {
	var b strings.Builder
	b.WriteString("^")

	var names []string
	last := 0
	for _, loc := range tokenRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := loc[0], loc[1]
		b.WriteString(regexp.QuoteMeta(src[last:start]))

		name := src[loc[2]:loc[3]]
		capture := defaultCapture
		if loc[4] != -1 {
			capture = src[loc[4]:loc[5]]
		}
		names = append(names, name)
		b.WriteString(fmt.Sprintf("(?P<%s>%s)", name, capture))

		last = end
	}
	b.WriteString(regexp.QuoteMeta(src[last:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("scheduler: compile trigger pattern %q: %w", src, err)
	}
	return &Pattern{source: src, re: re, names: names}, nil
}

// Match reports whether text matches the pattern in its entirety, and if
// so returns the named captures exposed to the response as PARAM_<name>.
func (p *Pattern) Match(text string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.names))
	for i, name := range p.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		params[name] = m[i]
	}
	return params, true
}

// String returns the pattern's original source text.
func (p *Pattern) String() string { return p.source }

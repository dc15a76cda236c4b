package scheduler

import "testing"

// TestPatternNamedCaptures is spec.md testable property #9: `{name}`
// captures non-whitespace, `{name:regex}` captures to the given class,
// and the pattern must match the whole message.
func TestPatternNamedCaptures(t *testing.T) {
	p, err := CompilePattern("ping {name:[A-Z]+}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	params, ok := p.Match("ping FOO")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["name"] != "FOO" {
		t.Fatalf("name = %q, want FOO", params["name"])
	}

	if _, ok := p.Match("ping foo"); ok {
		t.Fatalf("lowercase should not match [A-Z]+ capture")
	}
	if _, ok := p.Match("ping FOO now"); ok {
		t.Fatalf("pattern must be anchored to the whole message")
	}
}

func TestPatternDefaultCapture(t *testing.T) {
	p, err := CompilePattern("whois {id}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	params, ok := p.Match("whois !a1b2c3d4")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["id"] != "!a1b2c3d4" {
		t.Fatalf("id = %q", params["id"])
	}
	if _, ok := p.Match("whois two words"); ok {
		t.Fatalf("default capture is non-whitespace only, should not span a space")
	}
}

func TestPatternLiteralCharactersEscaped(t *testing.T) {
	p, err := CompilePattern("1+1=?")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := p.Match("1+1=?"); !ok {
		t.Fatalf("literal regex metacharacters should be matched literally")
	}
	if _, ok := p.Match("111=?"); ok {
		t.Fatalf("+ must not behave as a regex quantifier here")
	}
}

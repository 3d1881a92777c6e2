package format

import "testing"

func TestFill(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		kv   []string
		want string
	}{
		{"no placeholders", "hello", []string{"a", "b"}, "hello"},
		{"single", "hi {name}!", []string{"name", "Steve"}, "hi Steve!"},
		{"repeated", "{x}{x}", []string{"x", "ab"}, "abab"},
		{"unknown left alone", "{a} {b}", []string{"a", "1"}, "1 {b}"},
		{"values are not re-expanded", "{a}", []string{"a", "{b}", "b", "nope"}, "{b}"},
		{"no pairs", "{a}", nil, "{a}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fill(tt.tmpl, tt.kv...); got != tt.want {
				t.Errorf("Fill(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

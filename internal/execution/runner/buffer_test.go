package runner

import (
	"testing"
	"unicode/utf8"
)

func TestCappedBuffer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		max    int
		writes []string
		want   string
		trunc  bool
	}{
		{name: "under", max: 10, writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "exact", max: 6, writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "over", max: 4, writes: []string{"abc", "def"}, want: "abcd" + truncatedMarker, trunc: true},
		{name: "after full", max: 3, writes: []string{"abc", "d"}, want: "abc" + truncatedMarker, trunc: true},
		{name: "cut inside rune", max: 5, writes: []string{"abcdé"}, want: "abcd" + truncatedMarker, trunc: true},
		{name: "rune split across writes", max: 5, writes: []string{"abcd\xc3", "\xa9xyz"}, want: "abcd" + truncatedMarker, trunc: true},
		{name: "cut inside wide rune", max: 6, writes: []string{"ab世界"}, want: "ab世" + truncatedMarker, trunc: true},
		{name: "no writes after truncation", max: 5, writes: []string{"abcdé", "z"}, want: "abcd" + truncatedMarker, trunc: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newCappedBuffer(tt.max)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("expected full write, got n=%d err=%v", n, err)
				}
			}
			got := b.String()
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("expected valid UTF-8, got %q", got)
			}
			if b.Truncated() != tt.trunc {
				t.Fatalf("expected truncated=%v", tt.trunc)
			}
		})
	}
}

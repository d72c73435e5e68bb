package tagexpr

import (
	"errors"
	"testing"

	"github.com/halvar/mdn/internal/apperr"
)

func TestCompileAndMatch(t *testing.T) {
	cases := []struct {
		filter string
		tags   []string
		want   bool
	}{
		{"", nil, true},
		{"", []string{"@a"}, true},
		{"   ", []string{"@a"}, true},

		{"@a", []string{"@a"}, true},
		{"@a", []string{"@b"}, false},
		{"@a", nil, false},

		// AND, both spellings.
		{"@a & @b", []string{"@a", "@b"}, true},
		{"@a & @b", []string{"@a"}, false},
		{"@a, @b", []string{"@a", "@b"}, true},
		{"@a,@b,@c", []string{"@a", "@b", "@c"}, true},
		{"@a,@b,@c", []string{"@a", "@c"}, false},

		// OR, both spellings.
		{"@a | @b", []string{"@b"}, true},
		{"@a | @b", []string{"@c"}, false},
		{"@a ; @b", []string{"@a"}, true},

		// Negation.
		{"-@a", []string{"@b"}, true},
		{"-@a", []string{"@a"}, false},
		{"@a & -@b", []string{"@a"}, true},
		{"@a & -@b", []string{"@a", "@b"}, false},
		{"--@a", []string{"@a"}, true},

		// Precedence: AND binds tighter than OR.
		{"@a | @b & @c", []string{"@a"}, true},
		{"@a | @b & @c", []string{"@b"}, false},
		{"@a | @b & @c", []string{"@b", "@c"}, true},

		// Parens.
		{"(@a | @b) & @c", []string{"@a", "@c"}, true},
		{"(@a | @b) & @c", []string{"@a"}, false},
		{"-(@a | @b)", []string{"@c"}, true},
		{"-(@a | @b)", []string{"@b"}, false},

		// Case sensitivity.
		{"@Tag", []string{"@tag"}, false},
		{"@Tag", []string{"@Tag"}, true},
	}

	for _, tc := range cases {
		f, err := Compile(tc.filter)
		if err != nil {
			t.Errorf("Compile(%q): %v", tc.filter, err)
			continue
		}
		if got := f.Match(tc.tags); got != tc.want {
			t.Errorf("Match(%q, %v) = %v, want %v", tc.filter, tc.tags, got, tc.want)
		}
	}
}

func TestCompileInvalid(t *testing.T) {
	cases := []string{
		"@",
		"foo",
		"@a &",
		"& @a",
		"@a | ",
		"(@a",
		"@a)",
		"@a @b",
		"-",
		"@a && @b trailing junk (",
	}
	for _, filter := range cases {
		_, err := Compile(filter)
		if err == nil {
			t.Errorf("Compile(%q) succeeded, want error", filter)
			continue
		}
		var invalid *apperr.InvalidFilterError
		if !errors.As(err, &invalid) {
			t.Errorf("Compile(%q) error = %T, want *apperr.InvalidFilterError", filter, err)
		}
	}
}

func TestAllMatchesEverything(t *testing.T) {
	if !All.Match(nil) || !All.Match([]string{"@x", "@y"}) {
		t.Error("All should match every tag set")
	}
}

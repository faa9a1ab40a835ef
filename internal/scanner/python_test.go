package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyimports/internal/testpkg"
)

func extract(t *testing.T, src string) ([]Statement, error) {
	t.Helper()
	ex, err := NewPythonExtractor()
	require.NoError(t, err)
	t.Cleanup(ex.Close)
	return ex.Extract([]byte(testpkg.Dedent(src)))
}

func TestExtractStatements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Statement
	}{
		{
			name: "plain import",
			src:  "import os",
			want: []Statement{{Kind: Absolute, Segments: []string{"os"}, Line: 1}},
		},
		{
			name: "several modules with alias",
			src:  "import a.b, c as d",
			want: []Statement{
				{Kind: Absolute, Segments: []string{"a", "b"}, Line: 1},
				{Kind: Absolute, Segments: []string{"c"}, Line: 1},
			},
		},
		{
			name: "from import",
			src:  "from django.db import models, fields as f",
			want: []Statement{{
				Kind:     Absolute,
				Segments: []string{"django", "db"},
				Names:    []ImportedName{{Name: "models"}, {Name: "fields", Alias: "f"}},
				Line:     1,
			}},
		},
		{
			name: "relative",
			src:  "from .. import sibling",
			want: []Statement{{
				Kind:  Relative,
				Level: 2,
				Names: []ImportedName{{Name: "sibling"}},
				Line:  1,
			}},
		},
		{
			name: "relative with module",
			src:  "from .sub.mod import x",
			want: []Statement{{
				Kind:     Relative,
				Level:    1,
				Segments: []string{"sub", "mod"},
				Names:    []ImportedName{{Name: "x"}},
				Line:     1,
			}},
		},
		{
			name: "wildcard",
			src:  "from pkg import *",
			want: []Statement{{
				Kind:     Absolute,
				Segments: []string{"pkg"},
				Names:    []ImportedName{{Name: Wildcard}},
				Line:     1,
			}},
		},
		{
			name: "parenthesized",
			src: `
				from pkg import (
				    a,
				    b as c,
				)
			`,
			want: []Statement{{
				Kind:     Absolute,
				Segments: []string{"pkg"},
				Names:    []ImportedName{{Name: "a"}, {Name: "b", Alias: "c"}},
				Line:     1,
			}},
		},
		{
			name: "future",
			src:  "from __future__ import annotations",
			want: []Statement{{
				Kind:     Absolute,
				Segments: []string{"__future__"},
				Names:    []ImportedName{{Name: "annotations"}},
				Line:     1,
			}},
		},
		{
			name: "nested in function",
			src: `
				def f():
				    import json
			`,
			want: []Statement{{Kind: Absolute, Segments: []string{"json"}, Line: 2}},
		},
		{
			name: "no imports",
			src:  "x = 1",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extract(t, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTypeChecking(t *testing.T) {
	got, err := extract(t, `
		import typing
		from typing import TYPE_CHECKING

		if TYPE_CHECKING:
		    from pkg import a
		else:
		    from pkg import b

		if typing.TYPE_CHECKING:
		    import pkg.c

		if DEBUG:
		    import pkg.d
	`)
	require.NoError(t, err)
	require.Len(t, got, 6)

	flags := map[string]bool{}
	for _, s := range got {
		flags[s.String()] = s.TypeChecking
	}
	assert.Equal(t, map[string]bool{
		"import typing":                    false,
		"from typing import TYPE_CHECKING": false,
		"from pkg import a":                true,
		"from pkg import b":                false,
		"import pkg.c":                     true,
		"import pkg.d":                     false,
	}, flags)
}

func TestExtractSyntaxError(t *testing.T) {
	got, err := extract(t, `
		import os
		def broken(:
	`)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Nil(t, got)
}

func TestStatementString(t *testing.T) {
	s := Statement{Kind: Relative, Level: 2, Segments: []string{"x"}, Names: []ImportedName{{Name: "y", Alias: "z"}}}
	assert.Equal(t, "from ..x import y as z", s.String())
	assert.Equal(t, "import a.b", Statement{Segments: []string{"a", "b"}}.String())
}

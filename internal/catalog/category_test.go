package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindHasAForm(t *testing.T) {
	for _, k := range Kinds() {
		f := FormFor(k)
		assert.Equal(t, k, f.Kind)
		assert.NotEmpty(t, f.Fields, "%v has an empty form", k)
	}
}

func TestKindSlugsRoundTrip(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds() {
		slug := k.String()
		require.False(t, seen[slug], "duplicate slug %q", slug)
		seen[slug] = true

		parsed, ok := ParseKind(slug)
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}

	_, ok := ParseKind("flux_capacitor")
	assert.False(t, ok)
}

func TestSelectFieldsCarryOptions(t *testing.T) {
	for _, k := range Kinds() {
		for _, f := range FormFor(k).Fields {
			if f.Type == FieldSelect {
				assert.NotEmpty(t, f.Options, "%v field %q", k, f.Name)
			} else {
				assert.Empty(t, f.Options, "%v field %q", k, f.Name)
			}
		}
	}
}

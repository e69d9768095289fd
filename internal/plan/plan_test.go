package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseID(t *testing.T) {
	for raw, want := range map[string]ID{
		"starter":   Starter,
		"Starter":   Starter,
		"STANDARD":  Standard,
		" standard": Standard,
		"Unlimited": Unlimited,
	} {
		got, err := ParseID(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseID("premium")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestDefaultCatalogLookup(t *testing.T) {
	catalog, err := NewCatalog(zap.NewNop())
	require.NoError(t, err)

	starter, ok := catalog.Lookup(Starter)
	require.True(t, ok)
	require.NotNil(t, starter.IncludedCalls)
	assert.Equal(t, int64(200), *starter.IncludedCalls)
	assert.Nil(t, starter.IncludedMinutes)
	assert.True(t, starter.Metered())

	standard, ok := catalog.Lookup(Standard)
	require.True(t, ok)
	require.NotNil(t, standard.IncludedMinutes)
	assert.Equal(t, int64(1000), *standard.IncludedMinutes)
	assert.True(t, standard.Metered())

	unlimited, ok := catalog.Lookup(Unlimited)
	require.True(t, ok)
	assert.False(t, unlimited.Metered())

	_, ok = catalog.Lookup(ID("premium"))
	assert.False(t, ok)
}

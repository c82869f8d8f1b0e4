package modhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("combat", func() Plugin { return NewBasePlugin("combat") }))
	c.MustRegister("currency", func() Plugin { return NewBasePlugin("currency") })
	c.MustRegister("liar", func() Plugin { return NewBasePlugin("someone-else") })
	c.MustRegister("empty", func() Plugin { return nil })

	assert.ErrorIs(t, c.Register("combat", func() Plugin { return nil }), ErrDuplicateIdentifier)
	assert.ErrorIs(t, c.Register("nil", nil), ErrNoFactory)
	assert.Panics(t, func() { c.MustRegister("combat", func() Plugin { return nil }) })

	p, err := c.New("combat")
	require.NoError(t, err)
	assert.Equal(t, "combat", p.Identifier())

	other, err := c.New("combat")
	require.NoError(t, err)
	assert.NotSame(t, p, other, "each call builds a fresh instance")

	_, err = c.New("ghost")
	assert.ErrorIs(t, err, ErrNoFactory)
	_, err = c.New("liar")
	assert.ErrorIs(t, err, ErrIdentifierMismatch)
	_, err = c.New("empty")
	assert.ErrorIs(t, err, ErrNoFactory)

	assert.True(t, c.Has("currency"))
	assert.False(t, c.Has("ghost"))
	assert.Equal(t, []string{"combat", "currency", "empty", "liar"}, c.IDs())
}

package lifetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReflexivity(t *testing.T) {
	r := New()
	assert.True(t, r.Outlives("a", "a"))
	assert.False(t, r.Outlives("a", "b"))
}

func TestDirectAndTransitiveOutlives(t *testing.T) {
	r := New()
	r.Declare("a", "b")
	r.Declare("b", "c")

	assert.True(t, r.Outlives("a", "b"))
	assert.True(t, r.Outlives("b", "c"))
	assert.True(t, r.Outlives("a", "c"), "transitivity: a outlives b outlives c implies a outlives c")
	assert.False(t, r.Outlives("c", "a"))
}

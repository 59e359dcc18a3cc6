package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	provider := newFakeProvider()

	s := NewStream("example:4433", provider, testOptions(), r)
	defer s.Close()

	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	s.Close()
	_, ok = r.Get(s.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryEachVisitsAllStreams(t *testing.T) {
	r := NewRegistry()
	provider := newFakeProvider()

	s1 := NewStream("a:1", provider, testOptions(), r)
	defer s1.Close()
	s2 := NewStream("b:2", provider, testOptions(), r)
	defer s2.Close()

	seen := map[StreamID]bool{}
	r.Each(func(id StreamID, s *Stream) { seen[id] = true })

	assert.Len(t, seen, 2)
	assert.True(t, seen[s1.ID()])
	assert.True(t, seen[s2.ID()])
}

func TestStreamIDStringIsStable(t *testing.T) {
	r := NewRegistry()
	provider := newFakeProvider()
	s := NewStream("example:4433", provider, testOptions(), r)
	defer s.Close()

	id := s.ID()
	assert.Equal(t, id.String(), id.String())
	assert.NotEmpty(t, id.String())
}

package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func inline(fn func()) { fn() }

func TestSet_NotifiesInRegistrationOrder(t *testing.T) {
	s := NewSet[int]()
	var got []string
	s.Add(func(v int) { got = append(got, "a") })
	s.Add(func(v int) { got = append(got, "b") })

	s.Notify(inline, 1, 2)
	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}

func TestSet_RemoveIsIdempotent(t *testing.T) {
	s := NewSet[string]()
	calls := 0
	remove := s.Add(func(string) { calls++ })
	other := s.Add(func(string) {})

	remove()
	remove()
	assert.Equal(t, 1, s.Len())

	s.Notify(inline, "x")
	assert.Equal(t, 0, calls)

	other()
	assert.Equal(t, 0, s.Len())
}

func TestSet_NotifySkipsEmpty(t *testing.T) {
	s := NewSet[int]()
	scheduled := false
	s.Notify(func(func()) { scheduled = true }, 1)
	assert.False(t, scheduled, "no observers")

	s.Add(func(int) {})
	s.Notify(func(func()) { scheduled = true })
	assert.False(t, scheduled, "no events")

	s.Notify(func(func()) { scheduled = true }, 1)
	assert.True(t, scheduled)
}

func TestSet_Clear(t *testing.T) {
	s := NewSet[int]()
	s.Add(func(int) {})
	s.Add(func(int) {})
	s.Clear()
	assert.Empty(t, s.Snapshot())
}

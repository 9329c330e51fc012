package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestSlotReplaceClosesDisplaced(t *testing.T) {
	var s Slot[*fakeConn]

	first := &fakeConn{}
	second := &fakeConn{}

	s.Replace(first)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, first, cur)
	assert.False(t, first.isClosed())

	s.Replace(second)
	cur, ok = s.Current()
	require.True(t, ok)
	assert.Same(t, second, cur)
	assert.True(t, first.isClosed(), "displaced connection must be closed")
	assert.False(t, second.isClosed())
}

func TestSlotClearOnlyEvictsCurrent(t *testing.T) {
	var s Slot[*fakeConn]

	first := &fakeConn{}
	second := &fakeConn{}

	s.Replace(first)
	s.Replace(second)

	// The displaced connection's deferred cleanup must not evict its
	// successor.
	s.Clear(first)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, second, cur)

	s.Clear(second)
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestSlotReplaceSameConnectionDoesNotClose(t *testing.T) {
	var s Slot[*fakeConn]

	c := &fakeConn{}
	s.Replace(c)
	s.Replace(c)
	assert.False(t, c.isClosed())
}

package refs

import (
	"testing"
	"time"

	"github.com/bradfitz/iter"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPopRelease(t *testing.T) {
	var m Manager
	closed := 0
	closer := func() error {
		closed++
		return nil
	}
	a := m.New("a", closer)
	b := m.New("b", closer)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, m.Len())
	v, err := m.Get(a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = m.Pop(a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, 0, closed)
	_, err = m.Get(a)
	assert.ErrorIs(t, err, ErrBadRef)
	require.NoError(t, m.Release(b))
	assert.Equal(t, 1, closed)
	assert.ErrorIs(t, m.Release(b), ErrBadRef)
	assert.Equal(t, 0, m.Len())
}

func TestCloseReleasesAll(t *testing.T) {
	var m Manager
	var released []Id
	fail := errors.New("close failed")
	var ids []Id
	for i := range iter.N(3) {
		i := i
		id := Id(-1)
		closer := func() error {
			released = append(released, id)
			if i == 1 {
				return fail
			}
			return nil
		}
		id = m.New(i, closer)
		ids = append(ids, id)
	}
	m.New(nil, nil)
	assert.ErrorIs(t, m.Close(), fail)
	assert.ElementsMatch(t, ids, released)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.GetAll())
}

func TestExpiry(t *testing.T) {
	m := Manager{Expiry: 50 * time.Millisecond}
	done := make(chan struct{})
	id := m.New("x", func() error {
		close(done)
		return nil
	})
	kept := m.New("y", nil)
	for range iter.N(5) {
		time.Sleep(10 * time.Millisecond)
		_, err := m.Get(kept)
		require.NoError(t, err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ref did not expire")
	}
	_, err := m.Get(id)
	assert.ErrorIs(t, err, ErrBadRef)
	assert.Equal(t, map[Id]interface{}{kept: "y"}, m.GetAll())
}

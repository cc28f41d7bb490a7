package sync_

import (
	"errors"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestMutexed(t *testing.T) {
	assert := assert_.New(t)

	m := NewMutexed(1)
	assert.Equal(1, m.Get())
	m.Set(2)
	assert.Equal(2, m.Get())
	assert.Equal(2, m.Swap(3))
	assert.Equal(3, m.Get())

	var seen int
	assert.Nil(m.Locked(func(v int) error {
		seen = v
		return nil
	}))
	assert.Equal(3, seen)

	sentinel := errors.New("boom")
	assert.ErrorIs(m.Locked(func(int) error { return sentinel }), sentinel)
}

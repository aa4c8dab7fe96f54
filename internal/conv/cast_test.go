//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToUint64(t *testing.T) {
	t.Run("valid zero", func(t *testing.T) {
		got, err := IntToUint64(0)
		assert.NoError(t, err)
		assert.Equal(t, uint64(0), got)
	})

	t.Run("valid max int", func(t *testing.T) {
		got, err := IntToUint64(math.MaxInt)
		assert.NoError(t, err)
		assert.Equal(t, uint64(math.MaxInt), got)
	})

	t.Run("invalid negative", func(t *testing.T) {
		_, err := IntToUint64(-1)
		assert.Error(t, err)
	})
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(123)
	assert.NoError(t, err)
	assert.Equal(t, 123, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)
}

func TestUint64ToUint32(t *testing.T) {
	got, err := Uint64ToUint32(math.MaxUint32)
	assert.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), got)

	_, err = Uint64ToUint32(math.MaxUint32 + 1)
	assert.Error(t, err)
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{13, 8, 16},
		{65, 64, 128},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.v, tt.align), "AlignUp(%d, %d)", tt.v, tt.align)
	}
}

func TestNextPow2(t *testing.T) {
	assert.Equal(t, uint64(1), NextPow2(0))
	assert.Equal(t, uint64(1), NextPow2(1))
	assert.Equal(t, uint64(2), NextPow2(2))
	assert.Equal(t, uint64(4), NextPow2(3))
	assert.Equal(t, uint64(1024), NextPow2(1000))
	assert.Equal(t, uint64(1024), NextPow2(1024))
}

package compression

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64_RegularCadence(t *testing.T) {
	values := make([]int64, 100)
	for i := range values {
		values[i] = 1700000000000 + int64(i)*3000
	}
	data := CompressInt64(values)
	// 16 header bytes plus one bit per remaining value.
	assert.LessOrEqual(t, len(data), 16+(len(values)-2+7)/8)

	got, err := DecompressInt64(data, len(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestInt64_AllBuckets(t *testing.T) {
	values := []int64{100, 300, 200, 260, 199, 600, 5000, 4999, 1 << 50, -7, -7, 0}
	got, err := DecompressInt64(CompressInt64(values), len(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestInt64_SmallInputs(t *testing.T) {
	for _, values := range [][]int64{{}, {42}, {42, 41}} {
		got, err := DecompressInt64(CompressInt64(values), len(values))
		require.NoError(t, err)
		assert.Equal(t, values, got)
	}
}

func TestInt64_Truncated(t *testing.T) {
	data := CompressInt64([]int64{1, 2, 3, 1000000})
	_, err := DecompressInt64(data[:len(data)-3], 4)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestFloat64_SensorLikeSeries(t *testing.T) {
	values := []float64{72, 72, 73, 71.5, 36.6, 36.6, -0.98, 0, 0, 1e-9, -1e300, math.MaxFloat64, math.SmallestNonzeroFloat64}
	got, err := DecompressFloat64(CompressFloat64(values), len(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestFloat64_FullWidthXor(t *testing.T) {
	// Sign bit and lowest mantissa bit set: the XOR against zero has no
	// leading or trailing zeros.
	a := math.Float64frombits(0x8000000000000001)
	values := []float64{0, a, 0, a}
	got, err := DecompressFloat64(CompressFloat64(values), len(values))
	require.NoError(t, err)
	for i := range values {
		assert.Equal(t, math.Float64bits(values[i]), math.Float64bits(got[i]))
	}
}

func TestFloat64_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 500)
	for i := range values {
		values[i] = rng.NormFloat64() * 100
	}
	got, err := DecompressFloat64(CompressFloat64(values), len(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestFloat64_Truncated(t *testing.T) {
	_, err := DecompressFloat64([]byte{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrShortBuffer)

	got, err := DecompressFloat64(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

package vlq_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/vlq"
)

func TestSizeRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 126, 127, 128, 129, 255, 256, 65535, 65536,
		1 << 24, 1<<32 - 1, 1 << 32, math.MaxUint64}
	for _, v := range vals {
		enc := vlq.EncodeSize(nil, v)
		assert.Equal(t, vlq.SizeLen(v), len(enc), "v=%d", v)
		got, n := vlq.DecodeSize(enc)
		require.Equal(t, len(enc), n)
		assert.Equal(t, v, got, "v=%d", v)
	}
}

func TestSizeMinimalLength(t *testing.T) {
	// values under 128 must cost exactly one byte
	for v := uint64(0); v < 128; v++ {
		assert.Len(t, vlq.EncodeSize(nil, v), 1)
	}
	// 128 requires the header byte plus one byte of remainder
	assert.Len(t, vlq.EncodeSize(nil, 128), 2)
}

func TestIntRoundTrip(t *testing.T) {
	vals := []int64{0, 1, -1, 63, 64, -64, -65, 8191, -8192, 8192, -8193,
		math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	for _, v := range vals {
		enc := vlq.EncodeInt(nil, v)
		got, n := vlq.DecodeInt(enc)
		require.Equal(t, len(enc), n, "v=%d", v)
		assert.Equal(t, v, got, "v=%d", v)
	}
}

func TestIntSignBitAgreesWithSign(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 100, -100, 1 << 20, -(1 << 20)} {
		enc := vlq.EncodeInt(nil, v)
		last := enc[len(enc)-1]
		neg := v < 0
		assert.Equal(t, neg, last&0x40 != 0, "v=%d enc=%x", v, enc)
	}
}

func TestConstRoundTrip(t *testing.T) {
	for _, w := range []int{1, 2, 3, 4} {
		max := uint32(1)<<(8*uint(w)) - 1
		if w == 4 {
			max = math.MaxUint32
		}
		for _, v := range []uint32{0, 1, max / 2, max} {
			enc := vlq.EncodeConst(nil, v, w)
			assert.Len(t, enc, w)
			got, ok := vlq.DecodeConst(enc, w)
			require.True(t, ok)
			assert.Equal(t, v, got)
		}
	}
}

func TestWidthFor(t *testing.T) {
	cases := []struct {
		v    uint32
		want int
	}{
		{0, 1}, {0xff, 1}, {0x100, 2}, {0xffff, 2},
		{0x10000, 3}, {0xffffff, 3}, {0x1000000, 4}, {math.MaxUint32, 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, vlq.WidthFor(c.v), "v=%d", c.v)
	}
}

func TestEncodeConstPanicsOnOverflow(t *testing.T) {
	assert.Panics(t, func() { vlq.EncodeConst(nil, 0x100, 1) })
}

package balance

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	cases := map[string]string{
		"0":                    "0",
		"12":                   "12",
		"0.03":                 "0.03",
		"1.500":                "1.5",
		"0.000000000000000001": "0.000000000000000001",
	}
	for input, want := range cases {
		b, err := Parse(input)
		require.NoError(t, err, input)
		require.Equal(t, want, b.String(), input)
	}
	require.True(t, MustParse("0.03").Equal(FromBase(30_000_000_000_000_000)))
	require.True(t, MustParse("7").Equal(FromUnits(7)))
}

func TestParseRejects(t *testing.T) {
	for _, input := range []string{"", " ", "-1", "1.", ".5", "1e3", "0x10", "1.0000000000000000001", "340282366920938463464"} {
		if _, err := Parse(input); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Parse(%q): expected ErrInvalidAmount, got %v", input, err)
		}
	}
}

func TestBufferEncoding(t *testing.T) {
	b := MustParse("1")
	buf := b.Bytes()
	require.Len(t, buf, Size)
	decoded, err := FromBuffer(buf)
	require.NoError(t, err)
	require.True(t, decoded.Equal(b))

	require.Equal(t, bytes.Repeat([]byte{0xff}, Size), Max().Bytes())
	require.Equal(t, make([]byte, Size), Zero.Bytes())

	_, err = FromBuffer(make([]byte, Size-1))
	require.ErrorIs(t, err, ErrInvalidBuffer)
	require.False(t, IsValid(nil))
}

func TestArithmeticBounds(t *testing.T) {
	sum, ok := Add(FromUnits(1), FromUnits(2))
	require.True(t, ok)
	require.True(t, sum.Equal(FromUnits(3)))

	_, ok = Add(Max(), FromBase(1))
	require.False(t, ok)

	diff, ok := Sub(FromUnits(3), FromUnits(3))
	require.True(t, ok)
	require.True(t, diff.IsZero())

	_, ok = Sub(FromUnits(1), FromUnits(2))
	require.False(t, ok)
	require.Equal(t, -1, FromUnits(1).Cmp(FromUnits(2)))
}

func TestPercent(t *testing.T) {
	fee := MustParse("0.03")
	require.Equal(t, "0.0225", fee.Percent(7500).String())
	require.True(t, fee.Percent(0).IsZero())
	require.True(t, fee.Percent(BasisPoints).Equal(fee))
	require.True(t, FromBase(3).Percent(5000).Equal(FromBase(1)))
}

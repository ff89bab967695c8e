package fil

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFIL(t *testing.T) {
	cases := map[string]string{
		"1":          "1000000000000000000",
		"1.5":        "1500000000000000000",
		"0.00000001": "10000000000",
		"0":          "0",
	}
	for in, want := range cases {
		got, err := ParseFIL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, err := ParseFIL("")
	assert.Error(t, err)
	_, err = ParseFIL("1.2.3")
	assert.Error(t, err)
	_, err = ParseFIL("0.0000000000000000001") // 19 decimal places
	assert.Error(t, err)
}

func TestFormatAttoFIL(t *testing.T) {
	amount, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "1.5", FormatAttoFIL(amount))
	assert.Equal(t, "0", FormatAttoFIL(big.NewInt(0)))
	assert.Equal(t, "0.000000000000000001", FormatAttoFIL(big.NewInt(1)))
}

func TestConvert(t *testing.T) {
	got, err := Convert("1500000000000000000", AttoFIL, FIL)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got)

	got, err = Convert("2", FIL, NanoFIL)
	require.NoError(t, err)
	assert.Equal(t, "2000000000", got)

	got, err = Convert("3", FIL, FIL)
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	_, err = Convert("1", "WEI", FIL)
	assert.Error(t, err)
}

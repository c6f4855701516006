package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransactionHash(t *testing.T) {
	good := "0x" + strings.Repeat("ab", 32)
	assert.NoError(t, ValidateTransactionHash(good))

	for name, hash := range map[string]string{
		"empty":     "",
		"no prefix": strings.Repeat("ab", 33),
		"short":     "0xabc",
		"not hex":   "0x" + strings.Repeat("zz", 32),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateTransactionHash(hash))
		})
	}
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("52908400098527886E0F7030069857D2E4169EE7"))
	assert.Error(t, ValidateAddress("0x1234"))
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABCdef0000000000000000000000000000000001", " 0xabcdef0000000000000000000000000000000001"))
	assert.False(t, SameAddress("", ""))
	assert.Equal(t, "0xabcd", NormalizeAddress(" 0xABCD "))
}

func TestValidateAmount(t *testing.T) {
	v, err := ValidateAmount("1.25")
	require.NoError(t, err)
	assert.Equal(t, "1.25", v.String())

	_, err = ValidateAmount("-1")
	assert.Error(t, err)
	_, err = ValidateAmount("abc")
	assert.Error(t, err)
}

type purchaseBody struct {
	Network string `json:"network" validate:"required,network"`
	Tx      string `json:"tx" validate:"required,txhash"`
	Amount  string `json:"amount,omitempty" validate:"omitempty,amount"`
}

func TestDecodeAndValidate(t *testing.T) {
	var body purchaseBody
	err := DecodeAndValidate(strings.NewReader(`{"network":"cronos","tx":"0x`+strings.Repeat("01", 32)+`","amount":"2.5"}`), &body)
	require.NoError(t, err)
	assert.Equal(t, "cronos", body.Network)

	cases := map[string]string{
		"unknown field":   `{"network":"cronos","tx":"0x` + strings.Repeat("01", 32) + `","extra":1}`,
		"bad network":     `{"network":"dogechain","tx":"0x` + strings.Repeat("01", 32) + `"}`,
		"bad tx":          `{"network":"cronos","tx":"0x01"}`,
		"negative amount": `{"network":"cronos","tx":"0x` + strings.Repeat("01", 32) + `","amount":"-3"}`,
		"malformed":       `{"network":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var b purchaseBody
			err := DecodeAndValidate(strings.NewReader(raw), &b)
			var me *types.MarketError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, types.ErrCodeValidation, me.Code)
		})
	}
}

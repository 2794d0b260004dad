package ctrutil

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCounter(t *testing.T, s string) Counter {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, b, 16)
	return CounterFromBytes(b)
}

func TestCounterAdd(t *testing.T) {
	tests := []struct {
		name  string
		start string
		n     uint64
		want  string
	}{
		{"simple", "00000000000000000000000000000000", 5, "00000000000000000000000000000005"},
		{"carry into high word", "0000000000000000FFFFFFFFFFFFFFFF", 1, "00000000000000010000000000000000"},
		{"large step", "000000000000000000000000FFFFFFF0", 0x20, "00000000000000000000000100000010"},
		{"wraps around", "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", 1, "00000000000000000000000000000000"},
		{"wraps past zero", "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFE", 3, "00000000000000000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustCounter(t, tt.start)
			c.Add(tt.n)
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestCounterIncrement(t *testing.T) {
	c := mustCounter(t, "00112233445566778899AABBCCDDEEFF")
	c.Increment()
	assert.Equal(t, "00112233445566778899AABBCCDDEF00", c.String())

	text, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "00112233445566778899AABBCCDDEF00", string(text))
}

func TestRotateLeft(t *testing.T) {
	u := uint128{hi: 0x8000000000000000, lo: 1}
	assert.Equal(t, uint128{hi: 0, lo: 3}, u.rotateLeft(1))
	assert.Equal(t, uint128{hi: 1, lo: 0x8000000000000000}, u.rotateLeft(64))
	assert.Equal(t, u, u.rotateLeft(128))
	assert.Equal(t, u.rotateLeft(87), u.rotateLeft(80).rotateLeft(7))
}

// scrambleReference computes the key scrambler with arbitrary precision arithmetic.
func scrambleReference(keyX, keyY []byte) []byte {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	rol := func(v *big.Int, n uint) *big.Int {
		l := new(big.Int).Lsh(v, n)
		r := new(big.Int).Rsh(v, 128-n)
		return new(big.Int).And(new(big.Int).Or(l, r), mask)
	}
	c, _ := new(big.Int).SetString("1FF9E9AAC5FE0408024591DC5D52768A", 16)

	v := new(big.Int).Xor(rol(new(big.Int).SetBytes(keyX), 2), new(big.Int).SetBytes(keyY))
	v.Add(v, c)
	v.And(v, mask)
	return rol(v, 87).FillBytes(make([]byte, 16))
}

func TestScrambleKey(t *testing.T) {
	keys := [][]byte{
		bytes.Repeat([]byte{0x00}, 16),
		bytes.Repeat([]byte{0xFF}, 16),
		{0x6F, 0xBB, 0x01, 0xF8, 0x72, 0xCA, 0xF9, 0xC0, 0x18, 0x34, 0xEE, 0xC0, 0x40, 0x65, 0xEE, 0x53},
		{0xD0, 0x7B, 0x33, 0x7F, 0x9C, 0xA4, 0x38, 0x59, 0x32, 0xA2, 0xE2, 0x57, 0x23, 0x23, 0x2E, 0xB9},
	}

	for _, keyX := range keys {
		for _, keyY := range keys {
			got := ScrambleKey(keyX, keyY)
			assert.Equal(t, scrambleReference(keyX, keyY), got[:], "KeyX %X KeyY %X", keyX, keyY)
		}
	}
}

func TestScrambleKeyDependsOnKeyY(t *testing.T) {
	keyX := bytes.Repeat([]byte{0x42}, 16)
	a := ScrambleKey(keyX, bytes.Repeat([]byte{0x01}, 16))
	b := ScrambleKey(keyX, bytes.Repeat([]byte{0x02}, 16))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ScrambleKey(keyX, bytes.Repeat([]byte{0x01}, 16)))
}

func TestScrambleKeyRejectsShortKeys(t *testing.T) {
	assert.Panics(t, func() {
		ScrambleKey(make([]byte, 15), make([]byte, 16))
	})
}

func TestReverseBlock(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	ReverseBlock(b)
	assert.Equal(t, []byte{5, 4, 3, 2, 1}, b)
}

package ctrutil

import (
	"encoding/binary"
	"encoding/hex"
	"math/bits"
	"strings"
)

// uint128 holds a 128-bit big-endian value as two words.
type uint128 struct {
	hi, lo uint64
}

func uint128FromBytes(b []byte) uint128 {
	return uint128{
		hi: binary.BigEndian.Uint64(b),
		lo: binary.BigEndian.Uint64(b[8:]),
	}
}

func (u uint128) putBytes(b []byte) {
	binary.BigEndian.PutUint64(b, u.hi)
	binary.BigEndian.PutUint64(b[8:], u.lo)
}

func (u uint128) add(v uint128) uint128 {
	lo, carry := bits.Add64(u.lo, v.lo, 0)
	hi, _ := bits.Add64(u.hi, v.hi, carry)
	return uint128{hi: hi, lo: lo}
}

func (u uint128) xor(v uint128) uint128 {
	return uint128{hi: u.hi ^ v.hi, lo: u.lo ^ v.lo}
}

func (u uint128) rotateLeft(k uint) uint128 {
	k %= 128
	if k >= 64 {
		u.hi, u.lo = u.lo, u.hi
		k -= 64
	}
	if k == 0 {
		return u
	}
	return uint128{
		hi: u.hi<<k | u.lo>>(64-k),
		lo: u.lo<<k | u.hi>>(64-k),
	}
}

// Counter is a 16-byte big-endian AES counter block.
type Counter [16]byte

// CounterFromBytes copies the first 16 bytes of b into a Counter.
func CounterFromBytes(b []byte) Counter {
	var c Counter
	copy(c[:], b)
	return c
}

// Add n to the counter, modulo 2^128.
func (c *Counter) Add(n uint64) {
	uint128FromBytes(c[:]).add(uint128{lo: n}).putBytes(c[:])
}

// Increment the counter by one block.
func (c *Counter) Increment() {
	c.Add(1)
}

func (c Counter) String() string {
	return strings.ToUpper(hex.EncodeToString(c[:]))
}

// MarshalText implements encoding.TextMarshaler, also used for JSON encoding.
func (c Counter) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

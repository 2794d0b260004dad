package ctrutil

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// DecodeUTF16 string from the given bytes using the given ByteOrder.
func DecodeUTF16(src []byte, order binary.ByteOrder) string {
	if len(src)%2 != 0 {
		panic("UTF-16 payload must have an even length")
	}

	dst := make([]uint16, len(src)/2)
	for i := range dst {
		dst[i] = order.Uint16(src[i*2:])
	}

	return string(utf16.Decode(dst))
}

// DecodeFilename of a fixed-size, NUL-padded name field.
//
// Job lists written by older generators store names as UTF-16LE, newer ones as plain
// bytes. A field whose odd bytes are all zero up to the terminator is decoded as UTF-16LE.
func DecodeFilename(raw []byte) string {
	if isUTF16LE(raw) {
		units := raw[:len(raw)&^1]
		for i := 0; i+1 < len(units); i += 2 {
			if units[i] == 0 && units[i+1] == 0 {
				units = units[:i]
				break
			}
		}
		return DecodeUTF16(units, binary.LittleEndian)
	}

	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func isUTF16LE(raw []byte) bool {
	if len(raw) < 4 || raw[0] == 0 || raw[1] != 0 || raw[2] == 0 {
		return false
	}
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			return true
		}
		if raw[i+1] != 0 {
			return false
		}
	}
	return true
}

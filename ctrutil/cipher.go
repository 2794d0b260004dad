package ctrutil

// scramblerConstant is the public constant of the 3DS AES key scrambler.
var scramblerConstant = uint128{hi: 0x1FF9E9AAC5FE0408, lo: 0x024591DC5D52768A}

// ScrambleKey derives the normal key that the AES engine computes when a KeyY is
// written to a slot holding keyX:
//
//	normal = ROL128((ROL128(KeyX, 2) XOR KeyY) + C, 87)
func ScrambleKey(keyX, keyY []byte) [16]byte {
	if len(keyX) != 16 || len(keyY) != 16 {
		panic("ctrutil: KeyX and KeyY must be 16 bytes long")
	}

	x := uint128FromBytes(keyX).rotateLeft(2)
	y := uint128FromBytes(keyY)
	normal := x.xor(y).add(scramblerConstant).rotateLeft(87)

	var key [16]byte
	normal.putBytes(key[:])
	return key
}

// ReverseBlock reverses the byte order of b in place.
func ReverseBlock(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

package ctrdecrypt

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex wraps a []byte so that it encodes to hexadecimal.
type Hex []byte

func (h Hex) String() string {
	return strings.ToUpper(hex.EncodeToString(h))
}

// MarshalText implements encoding.TextMarshaler, also used for JSON encoding.
func (h Hex) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// KeySlot is the number of an AES engine key slot, printed the way key files name it.
type KeySlot int

func (s KeySlot) String() string {
	return fmt.Sprintf("0x%02X", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s KeySlot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TitleID is a 64-bit title or partition identifier, printed as 16 hexadecimal digits.
type TitleID uint64

func (id TitleID) String() string {
	return fmt.Sprintf("%016X", uint64(id))
}

// MarshalText implements encoding.TextMarshaler.
func (id TitleID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Offset wraps a NAND offset so that it encodes to hexadecimal.
type Offset int64

func (o Offset) String() string {
	return fmt.Sprintf("0x%08X", int64(o))
}

// MarshalText implements encoding.TextMarshaler, also used for JSON encoding.
func (o Offset) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

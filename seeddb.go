package ctrdecrypt

import (
	"fmt"
	"io"

	"github.com/connesc/ctrdecrypt/ctrutil"
)

const (
	seedTableHeaderSize = 0x10
	seedRecordSize      = 0x20
	seedDBFile          = "seeddb.bin"
)

// SeedRecord holds the external seed of a title.
type SeedRecord struct {
	TitleID  uint64
	Seed     [16]byte
	Reserved [8]byte
}

// SeedTable is the content of seeddb.bin.
type SeedTable struct {
	Entries []SeedRecord
}

type seedTableHeader struct {
	Count    uint32
	Reserved [12]byte
}

// ReadSeedTable parses a seed table.
func ReadSeedTable(input io.Reader) (*SeedTable, error) {
	reader := ctrutil.NewReader(input)

	raw := make([]byte, seedTableHeaderSize)
	if err := reader.ReadSection(raw, "header"); err != nil {
		return nil, fmt.Errorf("seeddb: %w", err)
	}
	var header seedTableHeader
	if err := unpack(raw, &header); err != nil {
		return nil, fmt.Errorf("seeddb: failed to parse header: %w", err)
	}
	if err := checkEntryCount(header.Count); err != nil {
		return nil, fmt.Errorf("seeddb: %w", err)
	}

	raw = make([]byte, int(header.Count)*seedRecordSize)
	if err := reader.ReadSection(raw, "records"); err != nil {
		return nil, fmt.Errorf("seeddb: %w", err)
	}
	entries, err := unpackRecords[SeedRecord](raw, int(header.Count), seedRecordSize)
	if err != nil {
		return nil, fmt.Errorf("seeddb: %w", err)
	}
	return &SeedTable{Entries: entries}, nil
}

// MarshalBinary encodes the table with its count header.
func (t *SeedTable) MarshalBinary() ([]byte, error) {
	data, err := packRecords(&seedTableHeader{Count: uint32(len(t.Entries))}, t.Entries)
	if err != nil {
		return nil, fmt.Errorf("seeddb: %w", err)
	}
	return data, nil
}

// Lookup the seed of the given title. A nil table has no seed.
func (t *SeedTable) Lookup(titleID uint64) ([16]byte, bool) {
	if t == nil {
		return [16]byte{}, false
	}
	for i := range t.Entries {
		if t.Entries[i].TitleID == titleID {
			return t.Entries[i].Seed, true
		}
	}
	return [16]byte{}, false
}

// SeedKeyY derives the KeyY of a seed crypto title: the first 16 bytes of
// SHA-256(keyY || seed).
func SeedKeyY(keyY, seed [16]byte) [16]byte {
	var derived [16]byte
	copy(derived[:], sha256Hash(keyY[:], seed[:]))
	return derived
}

package ctrdecrypt

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
)

// MaxEntries caps the number of records of every persisted table.
const MaxEntries = 1024

func checkEntryCount(count uint32) error {
	if count == 0 || count > MaxEntries {
		return fmt.Errorf("%w: %d (must be between 1 and %d)", ErrEntryCount, count, MaxEntries)
	}
	return nil
}

func unpack(data []byte, v interface{}) error {
	return restruct.Unpack(data, binary.LittleEndian, v)
}

func pack(v interface{}) ([]byte, error) {
	return restruct.Pack(binary.LittleEndian, v)
}

// unpackRecords decodes count records of recordSize bytes each.
func unpackRecords[T any](data []byte, count, recordSize int) ([]T, error) {
	if len(data) < count*recordSize {
		return nil, fmt.Errorf("expected 0x%x bytes of records, got 0x%x", count*recordSize, len(data))
	}
	records := make([]T, count)
	for i := range records {
		if err := unpack(data[i*recordSize:(i+1)*recordSize], &records[i]); err != nil {
			return nil, fmt.Errorf("failed to parse record %d: %w", i, err)
		}
	}
	return records, nil
}

// packRecords encodes records after the given header.
func packRecords[T any](header interface{}, records []T) ([]byte, error) {
	data, err := pack(header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range records {
		record, err := pack(&records[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		data = append(data, record...)
	}
	return data, nil
}

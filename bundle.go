package ctrdecrypt

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/connesc/ctrdecrypt/ctrutil"
)

const (
	bundleHeaderSize   = 0x10
	titleKeyRecordSize = 0x20
	titleKeySlot       = 0x3D
	encTitleKeysFile   = "encTitleKeys.bin"
	decTitleKeysFile   = "decTitleKeys.bin"
)

// commonKeyY holds the KeyY of each common key, by common key index.
// From https://github.com/profi200/Project_CTR/blob/master/makerom/pki/prod.h#L19
var commonKeyY = [6][16]byte{
	{0xD0, 0x7B, 0x33, 0x7F, 0x9C, 0xA4, 0x38, 0x59, 0x32, 0xA2, 0xE2, 0x57, 0x23, 0x23, 0x2E, 0xB9}, // eShop titles
	{0x0C, 0x76, 0x72, 0x30, 0xF0, 0x99, 0x8F, 0x1C, 0x46, 0x82, 0x82, 0x02, 0xFA, 0xAC, 0xBE, 0x4C}, // system titles
	{0xC4, 0x75, 0xCB, 0x3A, 0xB8, 0xC7, 0x88, 0xBB, 0x57, 0x5E, 0x12, 0xA1, 0x09, 0x07, 0xB8, 0xA4},
	{0xE4, 0x86, 0xEE, 0xE3, 0xD0, 0xC0, 0x9C, 0x90, 0x2F, 0x66, 0x86, 0xD4, 0xC0, 0x6F, 0x64, 0x9F},
	{0xED, 0x31, 0xBA, 0x9C, 0x04, 0xB0, 0x67, 0x50, 0x6C, 0x44, 0x97, 0xA3, 0x5B, 0x78, 0x04, 0xFC},
	{0x5E, 0x66, 0x99, 0x8A, 0xB4, 0xE8, 0x93, 0x16, 0x06, 0x85, 0x0F, 0xD7, 0xA1, 0x6D, 0xD7, 0x55},
}

// CommonKeyY returns the KeyY of the given common key.
func CommonKeyY(index uint32) ([16]byte, error) {
	if int(index) >= len(commonKeyY) {
		return [16]byte{}, fmt.Errorf("common key index must be less than %d, got %d", len(commonKeyY), index)
	}
	return commonKeyY[index], nil
}

// TitleKeyRecord binds a title to its title key, encrypted or not.
type TitleKeyRecord struct {
	CommonKeyIndex uint32
	Reserved       [4]byte
	TitleID        [8]byte
	TitleKey       [16]byte
}

// TitleKeyInfo is the JSON view of a TitleKeyRecord.
type TitleKeyInfo struct {
	TitleID        Hex
	CommonKeyIndex uint32
	TitleKey       Hex
}

// Info view of the record.
func (r *TitleKeyRecord) Info() TitleKeyInfo {
	return TitleKeyInfo{
		TitleID:        r.TitleID[:],
		CommonKeyIndex: r.CommonKeyIndex,
		TitleKey:       r.TitleKey[:],
	}
}

// KeyBundle is a deduplicated set of title keys, as stored in encTitleKeys.bin and
// decTitleKeys.bin.
type KeyBundle struct {
	Entries []TitleKeyRecord
	// Reserved header bytes, written back as read.
	Reserved [12]byte
}

type bundleHeader struct {
	Count    uint32
	Reserved [12]byte
}

// Contains reports whether the bundle already has a record for the given title.
func (b *KeyBundle) Contains(titleID [8]byte) bool {
	for i := range b.Entries {
		if b.Entries[i].TitleID == titleID {
			return true
		}
	}
	return false
}

// Len returns the number of records.
func (b *KeyBundle) Len() int {
	return len(b.Entries)
}

// Infos returns the JSON view of every record.
func (b *KeyBundle) Infos() []TitleKeyInfo {
	infos := make([]TitleKeyInfo, len(b.Entries))
	for i := range b.Entries {
		infos[i] = b.Entries[i].Info()
	}
	return infos
}

// ReadKeyBundle parses a bundle, rejecting it before any record is read if the count is invalid.
func ReadKeyBundle(input io.Reader) (*KeyBundle, error) {
	reader := ctrutil.NewReader(input)

	raw := make([]byte, bundleHeaderSize)
	if err := reader.ReadSection(raw, "header"); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	var header bundleHeader
	if err := unpack(raw, &header); err != nil {
		return nil, fmt.Errorf("bundle: failed to parse header: %w", err)
	}
	if err := checkEntryCount(header.Count); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}

	raw = make([]byte, int(header.Count)*titleKeyRecordSize)
	if err := reader.ReadSection(raw, "records"); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	entries, err := unpackRecords[TitleKeyRecord](raw, int(header.Count), titleKeyRecordSize)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}

	return &KeyBundle{Entries: entries, Reserved: header.Reserved}, nil
}

// MarshalBinary encodes the bundle with its count header.
func (b *KeyBundle) MarshalBinary() ([]byte, error) {
	data, err := packRecords(&bundleHeader{Count: uint32(len(b.Entries)), Reserved: b.Reserved}, b.Entries)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return data, nil
}

// DecryptTitleKey decrypts the title key of rec in place, with the common key selected by its
// index. The KeyY of the title key slot is only reinstalled when the common key changes.
func (e *Engine) DecryptTitleKey(rec *TitleKeyRecord) error {
	keyY, err := CommonKeyY(rec.CommonKeyIndex)
	if err != nil {
		return fmt.Errorf("titlekey: %w", err)
	}

	job := CryptoJob{
		KeySlot: titleKeySlot,
		SetKeyY: true,
		KeyY:    keyY,
		Mode:    ModeCBCDecrypt,
	}
	copy(job.Counter[:], rec.TitleID[:])

	if err := e.DecryptBuffer(&job, rec.TitleKey[:]); err != nil {
		return fmt.Errorf("titlekey: %w", err)
	}
	return nil
}

// DecryptBundle decrypts every title key of the bundle in place.
func (e *Engine) DecryptBundle(b *KeyBundle) error {
	for i := range b.Entries {
		if err := e.DecryptTitleKey(&b.Entries[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// writeBundle stores the bundle in the named file.
func (d *Decryptor) writeBundle(name string, b *KeyBundle) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	file, err := d.fs.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: failed to create %s: %w", name, err)
	}
	defer file.Close()
	if _, err := io.Copy(file, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("bundle: failed to write %s: %w", name, err)
	}
	return file.Close()
}

// DecryptTitleKeysFile decrypts the title keys of encTitleKeys.bin into decTitleKeys.bin.
func (d *Decryptor) DecryptTitleKeysFile() (*KeyBundle, error) {
	file, err := d.fs.Open(encTitleKeysFile)
	if err != nil {
		return nil, fmt.Errorf("bundle: failed to open %s: %w", encTitleKeysFile, err)
	}
	defer file.Close()

	bundle, err := ReadKeyBundle(file)
	if err != nil {
		return nil, err
	}
	log.WithField("entries", bundle.Len()).Info("Decrypting title keys")

	if err := d.engine.DecryptBundle(bundle); err != nil {
		return nil, err
	}
	if err := d.writeBundle(decTitleKeysFile, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

package ctrdecrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/connesc/ctrdecrypt/ctrutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encryptTitleKey computes the encrypted form of a title key, independently of the engine.
func encryptTitleKey(t *testing.T, titleID [8]byte, index int, key [16]byte) [16]byte {
	t.Helper()
	normal := ctrutil.ScrambleKey(testKey(0x4D), commonKeyY[index][:])
	block, err := aes.NewCipher(normal[:])
	require.NoError(t, err)

	iv := make([]byte, 16)
	copy(iv, titleID[:])

	var enc [16]byte
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc[:], key[:])
	return enc
}

func titleID(n uint64) [8]byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], n)
	return id
}

func titleKey(seed byte) [16]byte {
	var key [16]byte
	copy(key[:], testKey(seed))
	key[0] ^= 0x80
	return key
}

func TestDecryptTitleKey(t *testing.T) {
	e := testEngine(t)
	for index := range commonKeyY {
		id := titleID(0x0004000000030000 + uint64(index))
		rec := TitleKeyRecord{
			CommonKeyIndex: uint32(index),
			TitleID:        id,
			TitleKey:       encryptTitleKey(t, id, index, titleKey(byte(index))),
		}
		require.NoError(t, e.DecryptTitleKey(&rec))
		assert.Equal(t, titleKey(byte(index)), rec.TitleKey, "common key %d", index)
	}

	rec := TitleKeyRecord{CommonKeyIndex: uint32(len(commonKeyY))}
	assert.Error(t, e.DecryptTitleKey(&rec))
}

func TestDecryptBundleReusesCommonKey(t *testing.T) {
	e := testEngine(t)
	bundle := &KeyBundle{}
	for i := uint64(0); i < 4; i++ {
		id := titleID(0x0004000000040000 + i)
		bundle.Entries = append(bundle.Entries, TitleKeyRecord{
			CommonKeyIndex: 0,
			TitleID:        id,
			TitleKey:       encryptTitleKey(t, id, 0, titleKey(byte(i))),
		})
	}

	require.NoError(t, e.DecryptBundle(bundle))
	assert.Equal(t, 1, e.Installs())
	for i := range bundle.Entries {
		assert.Equal(t, titleKey(byte(i)), bundle.Entries[i].TitleKey)
	}
}

func TestKeyBundleEncoding(t *testing.T) {
	bundle := &KeyBundle{Entries: []TitleKeyRecord{
		{CommonKeyIndex: 1, TitleID: titleID(0x0004013800000002), TitleKey: titleKey(1)},
		{CommonKeyIndex: 0, TitleID: titleID(0x0004000000055D00), TitleKey: titleKey(2)},
	}}
	bundle.Reserved[0], bundle.Reserved[11] = 0xAA, 0x55

	data, err := bundle.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, bundleHeaderSize+2*titleKeyRecordSize)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data))
	assert.Equal(t, bundle.Reserved[:], data[4:bundleHeaderSize])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0x10:]))
	assert.Equal(t, []byte{0x00, 0x04, 0x01, 0x38, 0x00, 0x00, 0x00, 0x02}, data[0x18:0x20])

	decoded, err := ReadKeyBundle(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, bundle, decoded)
}

func TestReadKeyBundleRejectsCount(t *testing.T) {
	for _, count := range []uint32{0, MaxEntries + 1} {
		data := make([]byte, bundleHeaderSize)
		binary.LittleEndian.PutUint32(data, count)
		_, err := ReadKeyBundle(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrEntryCount, "count %d", count)
	}

	data := make([]byte, bundleHeaderSize+titleKeyRecordSize)
	binary.LittleEndian.PutUint32(data, 2)
	_, err := ReadKeyBundle(bytes.NewReader(data))
	assert.Error(t, err, "truncated records")
}

func TestDecryptTitleKeysFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, err := New(Config{Fs: fs, Engine: testEngine(t), Layout: testLayout()})
	require.NoError(t, err)

	id := titleID(0x000400000F700000)
	enc := &KeyBundle{Entries: []TitleKeyRecord{
		{CommonKeyIndex: 0, TitleID: id, TitleKey: encryptTitleKey(t, id, 0, titleKey(9))},
	}}
	data, err := enc.MarshalBinary()
	require.NoError(t, err)
	copy(data[4:bundleHeaderSize], "tool v1.0\x00\x00\x00")
	require.NoError(t, afero.WriteFile(fs, encTitleKeysFile, data, 0o644))

	bundle, err := d.DecryptTitleKeysFile()
	require.NoError(t, err)
	require.Equal(t, 1, bundle.Len())
	assert.Equal(t, titleKey(9), bundle.Entries[0].TitleKey)

	out, err := fs.Open(decTitleKeysFile)
	require.NoError(t, err)
	defer out.Close()
	written, err := ReadKeyBundle(out)
	require.NoError(t, err)
	assert.Equal(t, bundle, written)
	assert.Equal(t, "tool v1.0", string(bytes.TrimRight(written.Reserved[:], "\x00")))

	raw, err := afero.ReadFile(fs, decTitleKeysFile)
	require.NoError(t, err)
	assert.Equal(t, data[:bundleHeaderSize], raw[:bundleHeaderSize], "header written back verbatim")
}

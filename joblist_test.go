package ctrdecrypt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ncchJob(name string, sizeMB uint32, uses7x, usesSeed uint32, titleID uint64) NcchPadJob {
	job := NcchPadJob{
		SizeMB:         sizeMB,
		Uses7xCrypto:   uses7x,
		UsesSeedCrypto: usesSeed,
		TitleID:        titleID,
	}
	copy(job.Counter[:], testKey(byte(len(name))))
	copy(job.KeyY[:], testKey(byte(sizeMB+uses7x)))
	copy(job.Filename[:], name)
	return job
}

func TestNcchInfoLayout(t *testing.T) {
	jobs := []NcchPadJob{ncchJob("a.xorpad", 1, 1, 1, 0x0004000000055D00)}

	data, err := MarshalNcchInfo(jobs)
	require.NoError(t, err)
	require.Len(t, data, ncchInfoHeaderSize+ncchJobSize)
	assert.Equal(t, uint32(NcchInfoVersion), binary.LittleEndian.Uint32(data[4:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0x10+0x20:]), "size in MB")
	assert.Equal(t, uint64(0x0004000000055D00), binary.LittleEndian.Uint64(data[0x10+0x30:]))
	assert.Equal(t, "a.xorpad", string(data[0x10+0x38:0x10+0x40]))

	decoded, err := ReadNcchInfo(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, jobs, decoded)
	assert.Equal(t, "a.xorpad", decoded[0].Name())
}

func TestReadNcchInfoRejectsHeader(t *testing.T) {
	header := func(version, count uint32) []byte {
		data := make([]byte, ncchInfoHeaderSize+ncchJobSize)
		binary.LittleEndian.PutUint32(data[4:], version)
		binary.LittleEndian.PutUint32(data[8:], count)
		return data
	}

	_, err := ReadNcchInfo(bytes.NewReader(header(0xF0000003, 1)))
	assert.ErrorIs(t, err, ErrBadVersion)

	_, err = ReadNcchInfo(bytes.NewReader(header(NcchInfoVersion, 0)))
	assert.ErrorIs(t, err, ErrEntryCount)

	_, err = ReadNcchInfo(bytes.NewReader(header(NcchInfoVersion, MaxEntries+1)))
	assert.ErrorIs(t, err, ErrEntryCount)

	_, err = ReadNcchInfo(bytes.NewReader(header(NcchInfoVersion, 2)))
	assert.Error(t, err, "truncated entries")
}

func TestSdInfo(t *testing.T) {
	job := SdPadJob{SizeMB: 3}
	copy(job.Counter[:], testKey(0x77))
	for i, c := range "/Nintendo 3DS/title.xorpad" {
		binary.LittleEndian.PutUint16(job.Filename[i*2:], uint16(c))
	}

	data, err := MarshalSdInfo([]SdPadJob{job, job})
	require.NoError(t, err)
	require.Len(t, data, sdInfoHeaderSize+2*sdJobSize)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(data[sdInfoHeaderSize+0xC4:]))

	jobs, err := ReadSdInfo(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "/Nintendo 3DS/title.xorpad", jobs[1].Name())

	_, err = ReadSdInfo(bytes.NewReader(make([]byte, sdInfoHeaderSize)))
	assert.ErrorIs(t, err, ErrEntryCount)
}

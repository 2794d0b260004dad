package ctrdecrypt

import (
	"fmt"
	"io"

	"github.com/connesc/ctrdecrypt/ctrutil"
)

const (
	// NcchInfoVersion is the only supported version of ncchinfo.bin.
	NcchInfoVersion = 0xF0000004

	ncchInfoFile       = "ncchinfo.bin"
	ncchInfoHeaderSize = 0x10
	ncchJobSize        = 0xA8

	sdInfoFile       = "SDinfo.bin"
	sdInfoHeaderSize = 0x4
	sdJobSize        = 0xC8
)

// NcchPadJob is one entry of ncchinfo.bin.
type NcchPadJob struct {
	Counter        [16]byte
	KeyY           [16]byte
	SizeMB         uint32
	Reserved       [4]byte
	UsesSeedCrypto uint32
	Uses7xCrypto   uint32
	TitleID        uint64
	Filename       [112]byte
}

// Name of the pad file.
func (j *NcchPadJob) Name() string {
	return ctrutil.DecodeFilename(j.Filename[:])
}

type ncchInfoHeader struct {
	Padding  uint32
	Version  uint32
	Count    uint32
	Reserved [4]byte
}

// ReadNcchInfo parses ncchinfo.bin.
func ReadNcchInfo(input io.Reader) ([]NcchPadJob, error) {
	reader := ctrutil.NewReader(input)

	raw := make([]byte, ncchInfoHeaderSize)
	if err := reader.ReadSection(raw, "header"); err != nil {
		return nil, fmt.Errorf("ncchinfo: %w", err)
	}
	var header ncchInfoHeader
	if err := unpack(raw, &header); err != nil {
		return nil, fmt.Errorf("ncchinfo: failed to parse header: %w", err)
	}
	if err := checkEntryCount(header.Count); err != nil {
		return nil, fmt.Errorf("ncchinfo: %w", err)
	}
	if header.Version != NcchInfoVersion {
		return nil, fmt.Errorf("ncchinfo: %w: 0x%08X (expected 0x%08X)", ErrBadVersion, header.Version, uint32(NcchInfoVersion))
	}

	raw = make([]byte, int(header.Count)*ncchJobSize)
	if err := reader.ReadSection(raw, "entries"); err != nil {
		return nil, fmt.Errorf("ncchinfo: %w", err)
	}
	jobs, err := unpackRecords[NcchPadJob](raw, int(header.Count), ncchJobSize)
	if err != nil {
		return nil, fmt.Errorf("ncchinfo: %w", err)
	}
	return jobs, nil
}

// MarshalNcchInfo encodes jobs as ncchinfo.bin.
func MarshalNcchInfo(jobs []NcchPadJob) ([]byte, error) {
	header := &ncchInfoHeader{Version: NcchInfoVersion, Count: uint32(len(jobs))}
	data, err := packRecords(header, jobs)
	if err != nil {
		return nil, fmt.Errorf("ncchinfo: %w", err)
	}
	return data, nil
}

// SdPadJob is one entry of SDinfo.bin.
type SdPadJob struct {
	Filename [180]byte
	Counter  [16]byte
	SizeMB   uint32
}

// Name of the pad file.
func (j *SdPadJob) Name() string {
	return ctrutil.DecodeFilename(j.Filename[:])
}

type sdInfoHeader struct {
	Count uint32
}

// ReadSdInfo parses SDinfo.bin.
func ReadSdInfo(input io.Reader) ([]SdPadJob, error) {
	reader := ctrutil.NewReader(input)

	raw := make([]byte, sdInfoHeaderSize)
	if err := reader.ReadSection(raw, "header"); err != nil {
		return nil, fmt.Errorf("sdinfo: %w", err)
	}
	var header sdInfoHeader
	if err := unpack(raw, &header); err != nil {
		return nil, fmt.Errorf("sdinfo: failed to parse header: %w", err)
	}
	if err := checkEntryCount(header.Count); err != nil {
		return nil, fmt.Errorf("sdinfo: %w", err)
	}

	raw = make([]byte, int(header.Count)*sdJobSize)
	if err := reader.ReadSection(raw, "entries"); err != nil {
		return nil, fmt.Errorf("sdinfo: %w", err)
	}
	jobs, err := unpackRecords[SdPadJob](raw, int(header.Count), sdJobSize)
	if err != nil {
		return nil, fmt.Errorf("sdinfo: %w", err)
	}
	return jobs, nil
}

// MarshalSdInfo encodes jobs as SDinfo.bin.
func MarshalSdInfo(jobs []SdPadJob) ([]byte, error) {
	data, err := packRecords(&sdInfoHeader{Count: uint32(len(jobs))}, jobs)
	if err != nil {
		return nil, fmt.Errorf("sdinfo: %w", err)
	}
	return data, nil
}

package ctrdecrypt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

// MediaUnit is the unit of NCCH sizes and offsets.
const MediaUnit = 0x200

// NCCHHeader holds the fields of an NCCH header needed to locate and name its content.
type NCCHHeader struct {
	ContentSize int64
	PartitionID TitleID
	ProgramID   TitleID
	Version     uint16
	ProductCode string
}

// ParseNCCHHeader parses the first sector of an NCCH.
func ParseNCCHHeader(header []byte) (*NCCHHeader, error) {
	if len(header) < 0x160 {
		return nil, fmt.Errorf("ncch: header too short: %d bytes", len(header))
	}
	if string(header[0x100:0x104]) != "NCCH" {
		return nil, fmt.Errorf("ncch: %w", ErrBadMagic)
	}

	return &NCCHHeader{
		ContentSize: int64(binary.LittleEndian.Uint32(header[0x104:])) * MediaUnit,
		PartitionID: TitleID(binary.LittleEndian.Uint64(header[0x108:])),
		ProgramID:   TitleID(binary.LittleEndian.Uint64(header[0x118:])),
		Version:     binary.LittleEndian.Uint16(header[0x112:]),
		ProductCode: string(bytes.TrimRight(header[0x150:0x160], "\x00")),
	}, nil
}

// Filename of the extracted content, made of the partition ID halves, high word first.
func (h *NCCHHeader) Filename() string {
	return fmt.Sprintf("%08X%08X.app", uint32(h.PartitionID>>32), uint32(h.PartitionID))
}

// TitleInfo reports one NCCH found in CTRNAND.
type TitleInfo struct {
	Offset      Offset
	Size        int64
	Filename    string
	PartitionID TitleID
	ProgramID   TitleID
	ProductCode string
	Duplicate   bool `json:",omitempty"`
}

// DecryptNandSystemTitles scans CTRNAND sector by sector for NCCH headers and extracts every
// content found into <partition ID>.app.
//
// A header with a size of zero or larger than what remains of the partition is a false positive
// and the scan resumes at the next sector. A content whose file already exists is a duplicate: it
// is not extracted again, but the scan still skips over it.
func (d *Decryptor) DecryptNandSystemTitles() ([]TitleInfo, error) {
	ctrnand, err := d.CTRNAND()
	if err != nil {
		return nil, err
	}
	sectorSize := d.layout.SectorSize

	log.Info("Seeking for 'NCCH'")
	d.progress.Begin("NCCH", ctrnand.Size)
	defer d.progress.End()

	var titles []TitleInfo
	unique := 0

	for i := int64(0); i < ctrnand.Size; i += sectorSize {
		d.progress.Advance(i)
		offset := ctrnand.Offset + i

		header, err := d.readSectorHeader(offset, ctrnand)
		if err != nil {
			return nil, err
		}
		if header == nil {
			continue
		}

		size := header.ContentSize
		if size == 0 || size > ctrnand.Size-i {
			log.WithField("offset", fmt.Sprintf("0x%08X", offset+0x100)).Debug("Found NCCH, but invalid size")
			continue
		}

		title := TitleInfo{
			Offset:      Offset(offset),
			Size:        size,
			Filename:    header.Filename(),
			PartitionID: header.PartitionID,
			ProgramID:   header.ProgramID,
			ProductCode: header.ProductCode,
		}
		fields := log.Fields{
			"offset": fmt.Sprintf("0x%08X", offset+0x100),
			"file":   title.Filename,
			"size":   humanize.IBytes(uint64(size)),
		}

		if d.exists(title.Filename) {
			log.WithFields(fields).Info("Found duplicate")
			title.Duplicate = true
		} else {
			unique++
			log.WithFields(fields).WithField("number", unique).Info("Found title")
			if err := d.DecryptToFile(title.Filename, offset, size, ctrnand); err != nil {
				return nil, err
			}
		}
		titles = append(titles, title)
		i += size - sectorSize
	}

	log.WithField("count", unique).Info("Done, decrypted unique titles")
	return titles, nil
}

// readSectorHeader decrypts one sector and parses it as an NCCH header. It returns nil if the
// sector does not hold the NCCH magic.
func (d *Decryptor) readSectorHeader(offset int64, p *Partition) (*NCCHHeader, error) {
	sector := d.scratch.hold()[:d.layout.SectorSize]
	defer d.scratch.release()

	if err := d.ReadWindow(sector, offset, p); err != nil {
		return nil, err
	}
	if string(sector[0x100:0x104]) != "NCCH" {
		return nil, nil
	}
	return ParseNCCHHeader(sector)
}

package ctrdecrypt

import (
	"bytes"
	"fmt"

	"github.com/apex/log"
)

const (
	// TicketSize is the size of each ticket.db copy dumped from CTRNAND.
	TicketSize = 0xD0000
	ticketFile = "ticket.bin"

	ticketStride     = 0x200
	ticketScanOffset = 0x158
	ticketIssuer     = "Root-CA00000003-XS0000000c"
)

var ticketMarker = []byte("TICK")

// parseTicketRecord reads the title key fields of a ticket whose signed data (starting with the
// issuer) begins at data[0].
func parseTicketRecord(data []byte) TitleKeyRecord {
	var rec TitleKeyRecord
	copy(rec.TitleID[:], data[0x9c:0xa4])
	copy(rec.TitleKey[:], data[0x7f:0x8f])
	rec.CommonKeyIndex = uint32(data[0xb1])
	return rec
}

// ScanTitleKeys walks buf in ticket strides and adds the decrypted title key of every ticket
// found to bundle, skipping titles already present. It returns how many records were added.
func (e *Engine) ScanTitleKeys(buf []byte, bundle *KeyBundle) (int, error) {
	added := 0
	for i := ticketScanOffset; i < len(buf)-ticketStride; i += ticketStride {
		if !bytes.Equal(buf[i:i+len(ticketIssuer)], []byte(ticketIssuer)) {
			continue
		}

		rec := parseTicketRecord(buf[i:])
		if bundle.Contains(rec.TitleID) {
			continue
		}
		if len(bundle.Entries) >= MaxEntries {
			log.WithField("max", MaxEntries).Warn("Title key bundle is full, ignoring remaining tickets")
			return added, nil
		}
		if rec.CommonKeyIndex >= uint32(len(commonKeyY)) {
			log.WithFields(log.Fields{
				"title":  Hex(rec.TitleID[:]),
				"offset": fmt.Sprintf("0x%x", i),
				"index":  rec.CommonKeyIndex,
			}).Warn("Ignoring ticket with invalid common key index")
			continue
		}
		if err := e.DecryptTitleKey(&rec); err != nil {
			return added, err
		}

		bundle.Entries = append(bundle.Entries, rec)
		added++
	}
	return added, nil
}

// findMarker scans p sector by sector from the given absolute offset and returns the offset of
// the first sector starting with marker.
func (d *Decryptor) findMarker(p *Partition, from int64, marker []byte) (int64, error) {
	sectorSize := d.layout.SectorSize
	sector := d.scratch.hold()[:sectorSize]
	defer d.scratch.release()

	d.progress.Begin(string(marker), p.End()-from)
	defer d.progress.End()

	for offset := from; offset+sectorSize <= p.End(); offset += sectorSize {
		d.progress.Advance(offset - from)
		if err := d.ReadWindow(sector, offset, p); err != nil {
			return 0, err
		}
		if bytes.HasPrefix(sector, marker) {
			return offset, nil
		}
	}
	return 0, fmt.Errorf("ticket: %w in %s after 0x%08X", ErrTicketNotFound, p.Name, from)
}

// TicketData locates both copies of ticket.db in CTRNAND and returns them concatenated.
//
// The second copy is searched from a fixed distance after the first one, and each copy is read
// as one contiguous run: this only holds for an unfragmented CTRNAND, so a copy that would run
// past the end of the partition is reported as an error.
func (d *Decryptor) TicketData() ([]byte, error) {
	ctrnand, err := d.CTRNAND()
	if err != nil {
		return nil, err
	}

	var offsets [2]int64
	for i := range offsets {
		from := ctrnand.Offset
		if i > 0 {
			from = offsets[i-1] + d.layout.TicketMirrorOffset
		}
		log.WithField("copy", i+1).Info("Seeking for 'TICK'")

		offset, err := d.findMarker(ctrnand, from, ticketMarker)
		if err != nil {
			return nil, err
		}
		if offset+TicketSize > ctrnand.End() {
			return nil, fmt.Errorf("ticket: copy %d at 0x%08X runs past the end of %s", i+1, offset, ctrnand.Name)
		}
		log.WithField("offset", fmt.Sprintf("0x%08X", offset)).Info("Found ticket.db")
		offsets[i] = offset
	}

	buf := make([]byte, 2*TicketSize)
	for i, offset := range offsets {
		if err := d.ReadWindow(buf[i*TicketSize:(i+1)*TicketSize], offset, ctrnand); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DumpTicket writes both decrypted copies of ticket.db into ticket.bin.
func (d *Decryptor) DumpTicket() error {
	buf, err := d.TicketData()
	if err != nil {
		return err
	}
	file, err := d.fs.Create(ticketFile)
	if err != nil {
		return fmt.Errorf("ticket: failed to create %s: %w", ticketFile, err)
	}
	defer file.Close()
	if _, err := file.Write(buf); err != nil {
		return fmt.Errorf("ticket: failed to write %s: %w", ticketFile, err)
	}
	return file.Close()
}

// DecryptTitleKeysNand recovers the title keys of every ticket found in ticket.db and stores
// them into decTitleKeys.bin.
func (d *Decryptor) DecryptTitleKeysNand() (*KeyBundle, error) {
	buf, err := d.TicketData()
	if err != nil {
		return nil, err
	}

	log.Info("Decrypting title keys")
	bundle := &KeyBundle{}
	if _, err := d.engine.ScanTitleKeys(buf, bundle); err != nil {
		return nil, err
	}
	return d.finishTitleKeys(bundle)
}

// ScanPartitionTitleKeys recovers title keys by scanning the whole of each given partition,
// which does not depend on ticket.db being contiguous.
func (d *Decryptor) ScanPartitionTitleKeys(partitions ...*Partition) (*KeyBundle, error) {
	if err := d.requireNand(); err != nil {
		return nil, err
	}

	bundle := &KeyBundle{}
	for _, p := range partitions {
		if err := d.scanPartition(p, bundle); err != nil {
			return nil, err
		}
	}
	return d.finishTitleKeys(bundle)
}

// scanPartition runs the ticket scan over scratch-sized windows overlapping by one stride, so
// that a ticket near the end of a window is seen by the next one.
func (d *Decryptor) scanPartition(p *Partition, bundle *KeyBundle) error {
	buf := d.scratch.hold()
	defer d.scratch.release()

	d.progress.Begin(p.Name, p.Size)
	defer d.progress.End()

	for offset := p.Offset; offset < p.End(); {
		window := buf[:min(int64(len(buf)), p.End()-offset)]
		if err := d.ReadWindow(window, offset, p); err != nil {
			return err
		}
		if _, err := d.engine.ScanTitleKeys(window, bundle); err != nil {
			return err
		}
		if offset+int64(len(window)) >= p.End() {
			break
		}
		offset += int64(len(window)) - ticketStride
		d.progress.Advance(offset - p.Offset)
	}
	return nil
}

func (d *Decryptor) finishTitleKeys(bundle *KeyBundle) (*KeyBundle, error) {
	log.WithField("count", bundle.Len()).Info("Decrypted unique title keys")
	if bundle.Len() == 0 {
		return nil, fmt.Errorf("ticket: %w", ErrNoTitleKeys)
	}
	if err := d.writeBundle(decTitleKeysFile, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

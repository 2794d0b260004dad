package ctrdecrypt

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/connesc/cipherio"
	"github.com/dustin/go-humanize"
)

func (d *Decryptor) checkWindow(offset, size int64, p *Partition) error {
	sectorSize := d.layout.SectorSize
	if offset%sectorSize != 0 || size%sectorSize != 0 {
		return fmt.Errorf("nand: window 0x%x+0x%x is not sector aligned", offset, size)
	}
	if size < 0 || offset < p.Offset || offset > p.End()-size {
		return fmt.Errorf("nand: window 0x%x+0x%x is outside of %s", offset, size, p.Name)
	}
	return nil
}

// ReadWindow reads and decrypts len(dst) bytes at the given absolute NAND offset, which must
// lie within partition p.
func (d *Decryptor) ReadWindow(dst []byte, offset int64, p *Partition) error {
	if err := d.requireNand(); err != nil {
		return err
	}
	if err := d.checkWindow(offset, int64(len(dst)), p); err != nil {
		return err
	}

	if err := d.dev.ReadSectors(offset/d.layout.SectorSize, dst); err != nil {
		return fmt.Errorf("nand: %w", err)
	}

	job := CryptoJob{
		KeySlot: p.KeySlot,
		Counter: d.counter.At(offset),
		Mode:    p.Mode,
	}
	if err := d.engine.DecryptBuffer(&job, dst); err != nil {
		return fmt.Errorf("nand: failed to decrypt %s at 0x%08X: %w", p.Name, offset, err)
	}
	return nil
}

// ReadPartitionWindow returns size decrypted bytes at the given offset within partition p.
func (d *Decryptor) ReadPartitionWindow(p *Partition, offset, size int64) ([]byte, error) {
	if err := d.requireNand(); err != nil {
		return nil, err
	}
	if err := d.checkWindow(p.Offset+offset, size, p); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := d.ReadWindow(buf, p.Offset+offset, p); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecryptToFile decrypts size bytes at the given absolute NAND offset, within partition p, into
// the named file.
func (d *Decryptor) DecryptToFile(name string, offset, size int64, p *Partition) error {
	if err := d.requireNand(); err != nil {
		return err
	}
	if err := d.checkWindow(offset, size, p); err != nil {
		return err
	}
	if err := d.engine.Use(KeyContext{Slot: p.KeySlot}); err != nil {
		return fmt.Errorf("nand: %s: %w", p.Name, err)
	}
	mode, err := d.engine.NewBlockMode(p.KeySlot, d.counter.At(offset), p.Mode)
	if err != nil {
		return fmt.Errorf("nand: %s: %w", p.Name, err)
	}

	src := io.NewSectionReader(d.dev, offset, size)
	return d.streamToFile(name, cipherio.NewBlockReader(src, mode), size)
}

// streamToFile copies size bytes from r into a new file, one scratch buffer at a time.
func (d *Decryptor) streamToFile(name string, r io.Reader, size int64) error {
	file, err := d.fs.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer file.Close()

	buf := d.scratch.hold()
	defer d.scratch.release()

	d.progress.Begin(name, size)
	defer d.progress.End()

	for done := int64(0); done < size; {
		chunk := buf[:min(int64(len(buf)), size-done)]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("failed to read data for %s at 0x%x: %w", name, done, err)
		}
		if _, err := file.Write(chunk); err != nil {
			return fmt.Errorf("failed to write %s at 0x%x: %w", name, done, err)
		}
		done += int64(len(chunk))
		d.progress.Advance(done)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	return nil
}

// DecryptPartition decrypts the whole partition p into <NAME>.bin.
func (d *Decryptor) DecryptPartition(p *Partition) error {
	name := fmt.Sprintf("%s.bin", p.Name)
	log.WithFields(log.Fields{
		"partition": p.Name,
		"offset":    fmt.Sprintf("0x%08X", p.Offset),
		"size":      humanize.IBytes(uint64(p.Size)),
	}).Info("Dumping & decrypting partition")

	return d.DecryptToFile(name, p.Offset, p.Size, p)
}

// DecryptNandPartitions decrypts every partition of the current platform. It stops at the first
// failure.
func (d *Decryptor) DecryptNandPartitions() error {
	if err := d.requireNand(); err != nil {
		return err
	}
	for _, p := range d.layout.Available(d.platform) {
		if err := d.DecryptPartition(p); err != nil {
			return err
		}
	}
	return nil
}

// DumpNand copies the raw, still encrypted NAND into NAND.bin.
func (d *Decryptor) DumpNand() error {
	if err := d.requireNand(); err != nil {
		return err
	}
	variant, err := d.layout.Variant(d.platform)
	if err != nil {
		return err
	}
	size := variant.NandSize
	if size > d.dev.Size() {
		return fmt.Errorf("nand: device holds 0x%x bytes, expected at least 0x%x", d.dev.Size(), size)
	}

	log.WithField("size", humanize.IBytes(uint64(size))).Info("Dumping system NAND")

	return d.streamToFile("NAND.bin", io.NewSectionReader(d.dev, 0, size), size)
}

// RestoreNand writes NAND.bin back to the device, sector by sector.
func (d *Decryptor) RestoreNand() error {
	if err := d.requireNand(); err != nil {
		return err
	}

	file, err := d.fs.Open("NAND.bin")
	if err != nil {
		return fmt.Errorf("nand: failed to open NAND.bin: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("nand: failed to stat NAND.bin: %w", err)
	}
	size := info.Size()
	sectorSize := d.layout.SectorSize
	if size == 0 || size%sectorSize != 0 {
		return fmt.Errorf("nand: NAND.bin size 0x%x is not a positive multiple of the sector size", size)
	}
	if size > d.dev.Size() {
		return fmt.Errorf("nand: NAND.bin holds 0x%x bytes, device only 0x%x", size, d.dev.Size())
	}

	log.WithField("size", humanize.IBytes(uint64(size))).Info("Restoring system NAND")

	buf := d.scratch.hold()
	defer d.scratch.release()

	d.progress.Begin("NAND.bin", size)
	defer d.progress.End()

	for done := int64(0); done < size; {
		chunk := buf[:min(int64(len(buf)), size-done)]
		if _, err := io.ReadFull(file, chunk); err != nil {
			return fmt.Errorf("nand: failed to read NAND.bin at 0x%x: %w", done, err)
		}
		if err := d.dev.WriteSectors(done/sectorSize, chunk); err != nil {
			return fmt.Errorf("nand: %w", err)
		}
		done += int64(len(chunk))
		d.progress.Advance(done)
	}
	return nil
}

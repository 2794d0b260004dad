package ctrdecrypt

import (
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/connesc/cipherio"
	"github.com/connesc/ctrdecrypt/ctrutil"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

const (
	ncchSlot        = 0x2C
	ncch7xSlot      = 0x25
	ncchSecure4Slot = 0x18
	sdSlot          = 0x34

	uses7xSecure4 = 0xA

	slot0x25KeyXFile = "slot0x25KeyX.bin"
	movableFile      = "movable.sed"
	movableKeyY      = 0x110
	nandPadFile      = "nand.fat16.xorpad"
)

// PadJob describes one keystream file.
type PadJob struct {
	KeySlot  int
	KeyY     [16]byte
	SetKeyY  bool
	Counter  ctrutil.Counter
	SizeMB   uint32
	Filename string
}

// PadResult reports what happened to one pad job.
type PadResult struct {
	Filename string
	SizeMB   uint32
	KeySlot  KeySlot
	Counter  ctrutil.Counter
	Skipped  bool   `json:",omitempty"`
	Reason   string `json:",omitempty"`
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// CreatePad writes the keystream described by job: the encryption of SizeMB megabytes of zeros,
// the counter running on across scratch-sized chunks.
func (d *Decryptor) CreatePad(job *PadJob) error {
	ctx := KeyContext{Slot: job.KeySlot}
	if job.SetKeyY {
		ctx.KeyY = job.KeyY[:]
	}
	if err := d.engine.Use(ctx); err != nil {
		return fmt.Errorf("pad: %s: %w", job.Filename, err)
	}
	mode, err := d.engine.NewBlockMode(job.KeySlot, job.Counter, ModeCTR)
	if err != nil {
		return fmt.Errorf("pad: %s: %w", job.Filename, err)
	}

	size := int64(job.SizeMB) << 20
	if err := d.streamToFile(job.Filename, cipherio.NewBlockReader(io.LimitReader(zeroReader{}, size), mode), size); err != nil {
		return fmt.Errorf("pad: %w", err)
	}
	return nil
}

func (d *Decryptor) createPads(jobs []PadJob, results []PadResult) error {
	for i := range jobs {
		if results[i].Skipped {
			continue
		}
		log.WithFields(log.Fields{
			"number": i + 1,
			"file":   jobs[i].Filename,
			"size":   humanize.IBytes(uint64(jobs[i].SizeMB) << 20),
		}).Info("Creating pad")
		if err := d.CreatePad(&jobs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decryptor) exists(name string) bool {
	ok, err := afero.Exists(d.fs, name)
	return err == nil && ok
}

func (d *Decryptor) openOptional(name string, warning string) (afero.File, error) {
	if !d.exists(name) {
		log.Warn(warning)
		return nil, nil
	}
	file, err := d.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return file, nil
}

// ncchPadSlot selects the key slot of an NCCH pad from its crypto generation.
func (d *Decryptor) ncchPadSlot(uses7xCrypto uint32) (int, error) {
	switch {
	case uses7xCrypto == uses7xSecure4:
		switch d.platform {
		case PlatformO3DS:
			return 0, fmt.Errorf("key slot 0x%02X is only available on New 3DS", ncchSecure4Slot)
		case PlatformAny:
			log.WithField("slot", KeySlot(ncchSecure4Slot)).Warn("Platform unknown, assuming New 3DS for this key slot")
		}
		return ncchSecure4Slot, nil
	case uses7xCrypto != 0:
		return ncch7xSlot, nil
	default:
		return ncchSlot, nil
	}
}

// ncchPadJob turns an ncchinfo.bin entry into a pad job. It wraps ErrSeedNotFound when the
// entry needs a seed the table does not have.
func (d *Decryptor) ncchPadJob(entry *NcchPadJob, seeds *SeedTable) (PadJob, error) {
	job := PadJob{
		KeyY:     entry.KeyY,
		SetKeyY:  true,
		Counter:  entry.Counter,
		SizeMB:   entry.SizeMB,
		Filename: entry.Name(),
	}

	if entry.Uses7xCrypto != 0 && entry.UsesSeedCrypto != 0 {
		seed, ok := seeds.Lookup(entry.TitleID)
		if !ok {
			return job, fmt.Errorf("%w for title %v", ErrSeedNotFound, TitleID(entry.TitleID))
		}
		job.KeyY = SeedKeyY(entry.KeyY, seed)
	}

	slot, err := d.ncchPadSlot(entry.Uses7xCrypto)
	if err != nil {
		return job, err
	}
	job.KeySlot = slot
	return job, nil
}

// NcchPadgen creates the pads listed in ncchinfo.bin. slot0x25KeyX.bin and seeddb.bin are used
// when present. Entries whose seed is missing are handled according to the MissingSeedPolicy;
// every other failure aborts the whole list.
func (d *Decryptor) NcchPadgen() ([]PadResult, error) {
	keyXFile, err := d.openOptional(slot0x25KeyXFile, "7.x game decryption will fail on less than 7.x!")
	if err != nil {
		return nil, fmt.Errorf("ncchpad: %w", err)
	}
	if keyXFile != nil {
		defer keyXFile.Close()
		if err := LoadKeyXFile(keyXFile, d.engine, ncch7xSlot); err != nil {
			return nil, fmt.Errorf("ncchpad: %w", err)
		}
	}

	var seeds *SeedTable
	seedFile, err := d.openOptional(seedDBFile, "9.x seed crypto game decryption will fail!")
	if err != nil {
		return nil, fmt.Errorf("ncchpad: %w", err)
	}
	if seedFile != nil {
		defer seedFile.Close()
		if seeds, err = ReadSeedTable(seedFile); err != nil {
			return nil, err
		}
	}

	infoFile, err := d.fs.Open(ncchInfoFile)
	if err != nil {
		return nil, fmt.Errorf("ncchpad: failed to open %s: %w", ncchInfoFile, err)
	}
	defer infoFile.Close()
	entries, err := ReadNcchInfo(infoFile)
	if err != nil {
		return nil, err
	}
	log.WithField("entries", len(entries)).Info("Loaded ncchinfo.bin")

	jobs := make([]PadJob, len(entries))
	results := make([]PadResult, len(entries))
	for i := range entries {
		job, err := d.ncchPadJob(&entries[i], seeds)
		results[i] = PadResult{
			Filename: job.Filename,
			SizeMB:   job.SizeMB,
			KeySlot:  KeySlot(job.KeySlot),
			Counter:  job.Counter,
		}
		if errors.Is(err, ErrSeedNotFound) && d.missingSeed == SkipMissingSeed {
			log.WithField("file", job.Filename).Warnf("Skipping pad: %v", err)
			results[i].Skipped = true
			results[i].Reason = err.Error()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ncchpad: entry %d: %w", i+1, err)
		}
		jobs[i] = job
	}

	if err := d.createPads(jobs, results); err != nil {
		return nil, err
	}
	return results, nil
}

// LoadMovable installs the SD KeyY held by a movable.sed.
func LoadMovable(input io.Reader, engine *Engine) error {
	reader := ctrutil.NewReader(input)

	magic := make([]byte, 4)
	if err := reader.ReadSection(magic, "magic"); err != nil {
		return fmt.Errorf("movable: %w", err)
	}
	if string(magic) != "SEED" {
		return fmt.Errorf("movable: %w: %s is too corrupt", ErrBadMagic, movableFile)
	}

	keyY := make([]byte, 16)
	if err := reader.SkipTo(movableKeyY, "KeyY"); err != nil {
		return fmt.Errorf("movable: %w", err)
	}
	if err := reader.ReadSection(keyY, "KeyY"); err != nil {
		return fmt.Errorf("movable: %w", err)
	}
	if err := engine.SetKeyY(sdSlot, keyY); err != nil {
		return fmt.Errorf("movable: %w", err)
	}
	return nil
}

// SdPadgen creates the pads listed in SDinfo.bin, with the SD key of movable.sed when present,
// otherwise with whatever key is already in the SD key slot.
func (d *Decryptor) SdPadgen() ([]PadResult, error) {
	movable, err := d.openOptional(movableFile, "No movable.sed, using the SD key slot as is")
	if err != nil {
		return nil, fmt.Errorf("sdpad: %w", err)
	}
	if movable != nil {
		defer movable.Close()
		if err := LoadMovable(movable, d.engine); err != nil {
			return nil, err
		}
	}

	infoFile, err := d.fs.Open(sdInfoFile)
	if err != nil {
		return nil, fmt.Errorf("sdpad: failed to open %s: %w", sdInfoFile, err)
	}
	defer infoFile.Close()
	entries, err := ReadSdInfo(infoFile)
	if err != nil {
		return nil, err
	}
	log.WithField("entries", len(entries)).Info("Loaded SDinfo.bin")

	jobs := make([]PadJob, len(entries))
	results := make([]PadResult, len(entries))
	for i := range entries {
		jobs[i] = PadJob{
			KeySlot:  sdSlot,
			Counter:  entries[i].Counter,
			SizeMB:   entries[i].SizeMB,
			Filename: entries[i].Name(),
		}
		results[i] = PadResult{
			Filename: jobs[i].Filename,
			SizeMB:   jobs[i].SizeMB,
			KeySlot:  sdSlot,
			Counter:  jobs[i].Counter,
		}
	}

	if err := d.createPads(jobs, results); err != nil {
		return nil, err
	}
	return results, nil
}

// NandPadgen creates the pad of the CTRNAND FAT16 filesystem.
func (d *Decryptor) NandPadgen() (*PadResult, error) {
	if err := d.requireCounter(); err != nil {
		return nil, err
	}
	if d.platform == PlatformAny {
		return nil, fmt.Errorf("nandpad: %w", ErrUnknownPlatform)
	}
	variant, err := d.layout.Variant(d.platform)
	if err != nil {
		return nil, err
	}

	job := PadJob{
		KeySlot:  variant.FatPadSlot,
		Counter:  d.counter.At(d.layout.FatPadOffset),
		SizeMB:   variant.FatPadSizeMB,
		Filename: nandPadFile,
	}
	log.WithFields(log.Fields{
		"file": job.Filename,
		"size": humanize.IBytes(uint64(job.SizeMB) << 20),
	}).Info("Creating NAND FAT16 xorpad")

	if err := d.CreatePad(&job); err != nil {
		return nil, err
	}
	return &PadResult{
		Filename: job.Filename,
		SizeMB:   job.SizeMB,
		KeySlot:  KeySlot(job.KeySlot),
		Counter:  job.Counter,
	}, nil
}

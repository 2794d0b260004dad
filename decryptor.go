package ctrdecrypt

import (
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/afero"
)

var (
	// ErrEntryCount is returned when an input file declares zero or too many entries.
	ErrEntryCount = errors.New("too many/few entries")
	// ErrBadMagic is returned when an input file does not start with the expected magic.
	ErrBadMagic = errors.New("magic not found")
	// ErrBadVersion is returned when an input file has an unsupported version.
	ErrBadVersion = errors.New("unsupported version")
	// ErrTicketNotFound is returned when a ticket search window is exhausted.
	ErrTicketNotFound = errors.New("ticket marker not found")
	// ErrNoTitleKeys is returned when no title key could be recovered.
	ErrNoTitleKeys = errors.New("no title keys found")
	// ErrSeedNotFound is returned when a title needs a seed missing from the seed table.
	ErrSeedNotFound = errors.New("seed not found")
	// ErrNoNand is returned by NAND operations when no NAND has been configured.
	ErrNoNand = errors.New("no NAND configured")
	// ErrNoCID is returned by operations deriving NAND counters when no CID has been configured.
	ErrNoCID = errors.New("no NAND CID configured")
	// ErrUnknownPlatform is returned by operations that depend on the console generation when it
	// is neither configured nor detectable.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// MissingSeedPolicy tells the NCCH pad generator what to do with entries whose seed is missing.
type MissingSeedPolicy int

const (
	// SkipMissingSeed logs the entry and continues with the next one.
	SkipMissingSeed MissingSeedPolicy = iota
	// AbortOnMissingSeed fails the whole job list.
	AbortOnMissingSeed
)

// ParseMissingSeedPolicy accepts "skip" and "abort".
func ParseMissingSeedPolicy(s string) (MissingSeedPolicy, error) {
	switch s {
	case "skip", "":
		return SkipMissingSeed, nil
	case "abort":
		return AbortOnMissingSeed, nil
	default:
		return SkipMissingSeed, fmt.Errorf("unknown missing seed policy: %q", s)
	}
}

// Config of a Decryptor.
type Config struct {
	// Fs holds input files and receives every output. Defaults to the OS filesystem.
	Fs afero.Fs
	// Engine holding the key material. Defaults to an empty engine.
	Engine *Engine
	// Device is the raw NAND. Only NAND operations need it.
	Device BlockDevice
	// CID of the NAND, required along with Device.
	CID []byte
	// Platform of the console. When left to PlatformAny, it is detected from the NAND size.
	Platform Platform
	// Layout of the NAND. Defaults to RetailLayout.
	Layout      *Layout
	Progress    Progress
	MissingSeed MissingSeedPolicy
}

// Decryptor runs one operation at a time against a NAND and a set of files.
//
// It is not safe for concurrent use: every chunked operation shares a single scratch buffer,
// and key slots are shared mutable state.
type Decryptor struct {
	fs          afero.Fs
	engine      *Engine
	dev         BlockDevice
	counter     *NandCounter
	platform    Platform
	layout      *Layout
	progress    Progress
	missingSeed MissingSeedPolicy
	scratch     *scratch
}

// New Decryptor from the given Config.
func New(cfg Config) (*Decryptor, error) {
	d := &Decryptor{
		fs:          cfg.Fs,
		engine:      cfg.Engine,
		dev:         cfg.Device,
		platform:    cfg.Platform,
		layout:      cfg.Layout,
		progress:    cfg.Progress,
		missingSeed: cfg.MissingSeed,
		scratch:     newScratch(),
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.engine == nil {
		d.engine = NewEngine()
	}
	if d.layout == nil {
		d.layout = RetailLayout
	}
	if d.progress == nil {
		d.progress = nopProgress{}
	}
	if err := d.layout.Validate(); err != nil {
		return nil, err
	}

	if d.dev != nil || len(cfg.CID) > 0 {
		counter, err := NewNandCounter(cfg.CID, d.layout.ModernOffset)
		if err != nil {
			return nil, err
		}
		d.counter = counter
	}

	if d.dev != nil {
		if d.dev.SectorSize() != d.layout.SectorSize {
			return nil, fmt.Errorf("nand: device sector size %d does not match layout sector size %d", d.dev.SectorSize(), d.layout.SectorSize)
		}
		if d.platform == PlatformAny {
			d.platform = d.layout.DetectPlatform(d.dev.Size())
			log.WithField("platform", d.platform).Debug("Detected platform from NAND size")
		}
	}

	return d, nil
}

// Engine used by the Decryptor.
func (d *Decryptor) Engine() *Engine {
	return d.engine
}

// Platform of the console, PlatformAny if unknown.
func (d *Decryptor) Platform() Platform {
	return d.platform
}

// Layout used by the Decryptor.
func (d *Decryptor) Layout() *Layout {
	return d.layout
}

func (d *Decryptor) requireNand() error {
	if d.dev == nil {
		return ErrNoNand
	}
	return nil
}

func (d *Decryptor) requireCounter() error {
	if d.counter == nil {
		return ErrNoCID
	}
	return nil
}

// CTRNAND partition of the current platform.
func (d *Decryptor) CTRNAND() (*Partition, error) {
	if err := d.requireNand(); err != nil {
		return nil, err
	}
	return d.layout.Partition("CTRNAND", d.platform)
}

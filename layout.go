package ctrdecrypt

import (
	"fmt"
	"strings"
)

// Platform distinguishes the two console generations.
type Platform int

const (
	// PlatformAny marks partitions present on every console.
	PlatformAny Platform = iota
	// PlatformO3DS is the original 3DS family.
	PlatformO3DS
	// PlatformN3DS is the New 3DS family.
	PlatformN3DS
)

func (p Platform) String() string {
	switch p {
	case PlatformAny:
		return "any"
	case PlatformO3DS:
		return "o3ds"
	case PlatformN3DS:
		return "n3ds"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// ParsePlatform accepts "o3ds", "n3ds" and their "3ds"/"new3ds" aliases.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "o3ds", "3ds", "old3ds":
		return PlatformO3DS, nil
	case "n3ds", "new3ds":
		return PlatformN3DS, nil
	default:
		return PlatformAny, fmt.Errorf("unknown platform: %q", s)
	}
}

// Partition of the NAND.
type Partition struct {
	Name     string
	Offset   int64
	Size     int64
	KeySlot  int
	Mode     Mode
	Platform Platform
}

// AvailableOn reports whether the partition exists on the given platform.
func (p *Partition) AvailableOn(platform Platform) bool {
	return p.Platform == PlatformAny || p.Platform == platform
}

// End offset of the partition, exclusive.
func (p *Partition) End() int64 {
	return p.Offset + p.Size
}

// Variant holds the per-platform parameters of a layout.
type Variant struct {
	// NandSize is the size of a raw NAND dump.
	NandSize int64
	// FatPadSlot and FatPadSizeMB describe the CTRNAND FAT16 pad.
	FatPadSlot   int
	FatPadSizeMB uint32
}

// Layout describes where things live on the NAND. Offsets are absolute byte offsets.
type Layout struct {
	SectorSize int64
	// ModernOffset separates the TWL region, whose counter comes from SHA-1, from the CTR
	// region, whose counter comes from SHA-256.
	ModernOffset int64
	Partitions   []Partition
	// TicketMirrorOffset separates the two copies of ticket.db inside CTRNAND.
	TicketMirrorOffset int64
	// FatPadOffset is where the CTRNAND FAT16 pad starts.
	FatPadOffset int64
	Variants     map[Platform]Variant
}

// RetailLayout is the flash filesystem layout of retail consoles.
// See http://3dbrew.org/wiki/Flash_Filesystem
var RetailLayout = &Layout{
	SectorSize:   0x200,
	ModernOffset: 0x0B100000,
	Partitions: []Partition{
		{"TWLN", 0x00012E00, 0x08FB5200, 0x03, ModeTWLCTR, PlatformAny},
		{"TWLP", 0x09011A00, 0x020B6600, 0x03, ModeTWLCTR, PlatformAny},
		{"AGBSAVE", 0x0B100000, 0x00030000, 0x07, ModeCTR, PlatformAny},
		{"FIRM0", 0x0B130000, 0x00400000, 0x06, ModeCTR, PlatformAny},
		{"FIRM1", 0x0B530000, 0x00400000, 0x06, ModeCTR, PlatformAny},
		{"CTRNAND", 0x0B95CA00, 0x2F3E3600, 0x04, ModeCTR, PlatformO3DS},
		{"CTRNAND", 0x0B95AE00, 0x41D2D200, 0x05, ModeCTR, PlatformN3DS},
	},
	// from rxTools v2.4
	TicketMirrorOffset: 0x11BE200,
	FatPadOffset:       0x0B930000,
	Variants: map[Platform]Variant{
		PlatformO3DS: {NandSize: 0x3AF00000, FatPadSlot: 0x04, FatPadSizeMB: 758},
		PlatformN3DS: {NandSize: 0x4D800000, FatPadSlot: 0x05, FatPadSizeMB: 1055},
	},
}

// Partition by name, for the given platform.
func (l *Layout) Partition(name string, platform Platform) (*Partition, error) {
	for i := range l.Partitions {
		p := &l.Partitions[i]
		if strings.EqualFold(p.Name, name) && p.AvailableOn(platform) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("layout: no partition %s on %v", name, platform)
}

// Available partitions on the given platform, in layout order.
func (l *Layout) Available(platform Platform) []*Partition {
	partitions := make([]*Partition, 0, len(l.Partitions))
	for i := range l.Partitions {
		if l.Partitions[i].AvailableOn(platform) {
			partitions = append(partitions, &l.Partitions[i])
		}
	}
	return partitions
}

// Variant for the given platform.
func (l *Layout) Variant(platform Platform) (Variant, error) {
	v, ok := l.Variants[platform]
	if !ok {
		return Variant{}, fmt.Errorf("layout: no variant for %v", platform)
	}
	return v, nil
}

// DetectPlatform from the size of a raw NAND: anything at least as large as the New 3DS NAND
// is a New 3DS.
func (l *Layout) DetectPlatform(nandSize int64) Platform {
	if n3ds, ok := l.Variants[PlatformN3DS]; ok && nandSize >= n3ds.NandSize {
		return PlatformN3DS
	}
	return PlatformO3DS
}

// Validate checks that partitions are sector aligned and do not overlap on any platform.
func (l *Layout) Validate() error {
	if l.SectorSize <= 0 || l.SectorSize%BlockSize != 0 {
		return fmt.Errorf("layout: sector size must be a positive multiple of %d, got %d", BlockSize, l.SectorSize)
	}
	for _, platform := range []Platform{PlatformO3DS, PlatformN3DS} {
		var prev *Partition
		for _, p := range l.Available(platform) {
			if p.Offset%l.SectorSize != 0 || p.Size%l.SectorSize != 0 || p.Size <= 0 {
				return fmt.Errorf("layout: partition %s is not sector aligned", p.Name)
			}
			if err := checkSlot(p.KeySlot); err != nil {
				return fmt.Errorf("layout: partition %s: %w", p.Name, err)
			}
			if prev != nil && p.Offset < prev.End() {
				return fmt.Errorf("layout: partition %s overlaps %s on %v", p.Name, prev.Name, platform)
			}
			if (p.Offset < l.ModernOffset) != (p.End() <= l.ModernOffset) {
				return fmt.Errorf("layout: partition %s crosses the TWL/CTR boundary", p.Name)
			}
			prev = p
		}
	}
	return nil
}

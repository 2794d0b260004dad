package ctrdecrypt

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var testCID = []byte{
	0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF,
	0xFE, 0xDC, 0xBA, 0x98, 0x76, 0x54, 0x32, 0x10,
}

// testLayout is a scaled down layout with one TWL and two CTR partitions.
func testLayout() *Layout {
	return &Layout{
		SectorSize:   0x200,
		ModernOffset: 0x40000,
		Partitions: []Partition{
			{"TWLN", 0x1000, 0x3F000, 0x03, ModeTWLCTR, PlatformAny},
			{"FIRM0", 0x40000, 0x10000, 0x06, ModeCTR, PlatformAny},
			{"CTRNAND", 0x50000, 0x300000, 0x04, ModeCTR, PlatformO3DS},
			{"CTRNAND", 0x50000, 0x3B0000, 0x05, ModeCTR, PlatformN3DS},
		},
		TicketMirrorOffset: 0xE0000,
		FatPadOffset:       0x50000,
		Variants: map[Platform]Variant{
			PlatformO3DS: {NandSize: 0x350000, FatPadSlot: 0x04, FatPadSizeMB: 1},
			PlatformN3DS: {NandSize: 0x400000, FatPadSlot: 0x05, FatPadSizeMB: 1},
		},
	}
}

func testKey(seed byte) []byte {
	return bytes.Repeat([]byte{seed}, 16)
}

// testEngine holds normal keys for the NAND slots and KeyX for the others.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	for slot, seed := range map[int]byte{0x03: 0x13, 0x04: 0x14, 0x05: 0x15, 0x06: 0x16, 0x07: 0x17} {
		require.NoError(t, e.SetNormalKey(slot, testKey(seed)))
	}
	for slot, seed := range map[int]byte{0x18: 0x28, 0x25: 0x35, 0x2C: 0x3C, 0x34: 0x44, 0x3D: 0x4D} {
		require.NoError(t, e.SetKeyX(slot, testKey(seed)))
	}
	return e
}

type testNand struct {
	fs     afero.Fs
	dev    *ImageDevice
	layout *Layout
	engine *Engine
	d      *Decryptor
}

// newTestNand creates a zeroed NAND image of the given platform size, in memory.
func newTestNand(t *testing.T, platform Platform) *testNand {
	t.Helper()
	fs := afero.NewMemMapFs()
	layout := testLayout()
	size := layout.Variants[platform].NandSize

	file, err := fs.Create("image.bin")
	require.NoError(t, err)
	require.NoError(t, file.Truncate(size))
	t.Cleanup(func() { file.Close() })

	dev, err := NewImageDevice(file, size, layout.SectorSize)
	require.NoError(t, err)

	engine := testEngine(t)
	d, err := New(Config{
		Fs:     fs,
		Engine: engine,
		Device: dev,
		CID:    testCID,
		Layout: layout,
	})
	require.NoError(t, err)

	return &testNand{fs: fs, dev: dev, layout: layout, engine: engine, d: d}
}

// plant encrypts plaintext the way partition p is encrypted and writes it at the given offset.
func (n *testNand) plant(t *testing.T, offset int64, p *Partition, plaintext []byte) {
	t.Helper()
	require.Zero(t, offset%n.layout.SectorSize)
	buf := make([]byte, (int64(len(plaintext))+n.layout.SectorSize-1)/n.layout.SectorSize*n.layout.SectorSize)
	copy(buf, plaintext)

	job := CryptoJob{KeySlot: p.KeySlot, Counter: n.d.counter.At(offset), Mode: p.Mode}
	require.NoError(t, n.engine.DecryptBuffer(&job, buf))
	require.NoError(t, n.dev.WriteSectors(offset/n.layout.SectorSize, buf))
}

func (n *testNand) partition(t *testing.T, name string) *Partition {
	t.Helper()
	p, err := n.layout.Partition(name, n.d.Platform())
	require.NoError(t, err)
	return p
}

func (n *testNand) readFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := afero.ReadFile(n.fs, name)
	require.NoError(t, err)
	return data
}

func (n *testNand) writeFile(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(n.fs, name, data, 0o644))
}

// ticketRecord builds a ticket stride: the issuer followed by the title key fields.
func ticketRecord(titleID [8]byte, index byte, encKey [16]byte) []byte {
	rec := make([]byte, 0x200)
	copy(rec, ticketIssuer)
	copy(rec[0x9c:], titleID[:])
	copy(rec[0x7f:], encKey[:])
	rec[0xb1] = index
	return rec
}

// recordingProgress keeps track of the tasks still open.
type recordingProgress struct {
	open  []string
	tasks []string
}

func (p *recordingProgress) Begin(task string, total int64) {
	p.open = append(p.open, task)
	p.tasks = append(p.tasks, task)
}

func (p *recordingProgress) Advance(current int64) {}

func (p *recordingProgress) End() {
	p.open = p.open[:len(p.open)-1]
}

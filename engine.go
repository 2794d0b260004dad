package ctrdecrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"github.com/connesc/ctrdecrypt/ctrutil"
)

// BlockSize of the AES engine.
const BlockSize = aes.BlockSize

// NumKeySlots is the number of key slots of the AES engine.
const NumKeySlots = 0x40

// Mode selects how the engine transforms blocks.
type Mode int

const (
	// ModeCTR is plain big-endian counter mode (CTRNAND, AGBSAVE, FIRM, pads).
	ModeCTR Mode = iota
	// ModeTWLCTR is counter mode with every block processed in reversed byte order, as
	// configured for the TWL partitions.
	ModeTWLCTR
	// ModeCBCDecrypt is CBC decryption, the counter register acting as IV. Used for title keys.
	ModeCBCDecrypt
)

func (m Mode) String() string {
	switch m {
	case ModeCTR:
		return "ctr"
	case ModeTWLCTR:
		return "twl-ctr"
	case ModeCBCDecrypt:
		return "cbc-decrypt"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type keySlot struct {
	keyX, keyY []byte
	normal     cipher.Block
}

// Engine is a software model of the console AES engine and its key slots.
//
// Like the hardware, writing a KeyY to a slot holding a KeyX replaces the slot key with the
// scrambled normal key, and that key stays active until the slot is written again.
type Engine struct {
	slots    [NumKeySlots]keySlot
	installs int
}

// NewEngine with every key slot empty.
func NewEngine() *Engine {
	return &Engine{}
}

func checkSlot(slot int) error {
	if slot < 0 || slot >= NumKeySlots {
		return fmt.Errorf("engine: key slot 0x%02X out of range", slot)
	}
	return nil
}

func checkKey(what string, key []byte) error {
	if len(key) != 16 {
		return fmt.Errorf("engine: %s must be 16 bytes long, got %d", what, len(key))
	}
	return nil
}

// SetKeyX stores a KeyX in the given slot. The slot key is only recomputed by the next KeyY.
func (e *Engine) SetKeyX(slot int, keyX []byte) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := checkKey("KeyX", keyX); err != nil {
		return err
	}
	e.slots[slot].keyX = append([]byte(nil), keyX...)
	e.slots[slot].keyY = nil
	return nil
}

// SetNormalKey stores a normal key in the given slot, bypassing the key scrambler.
func (e *Engine) SetNormalKey(slot int, key []byte) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := checkKey("normal key", key); err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("engine: failed to initialize key slot 0x%02X: %w", slot, err)
	}
	e.slots[slot].normal = block
	e.slots[slot].keyY = nil
	return nil
}

// SetKeyY installs a KeyY into the given slot, unconditionally.
func (e *Engine) SetKeyY(slot int, keyY []byte) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := checkKey("KeyY", keyY); err != nil {
		return err
	}
	s := &e.slots[slot]
	if s.keyX == nil {
		return fmt.Errorf("engine: no KeyX in key slot 0x%02X", slot)
	}
	normal := ctrutil.ScrambleKey(s.keyX, keyY)
	block, err := aes.NewCipher(normal[:])
	if err != nil {
		return fmt.Errorf("engine: failed to initialize key slot 0x%02X: %w", slot, err)
	}
	s.normal = block
	s.keyY = append([]byte(nil), keyY...)
	e.installs++
	return nil
}

// KeyContext identifies the key a caller expects in a slot.
//
// A nil KeyY means the key is already resident (NAND slots, SD slot after movable.sed).
type KeyContext struct {
	Slot int
	KeyY []byte
}

// Use makes the given key context active, installing its KeyY only when it differs from the
// KeyY last installed in that slot.
func (e *Engine) Use(ctx KeyContext) error {
	if err := checkSlot(ctx.Slot); err != nil {
		return err
	}
	s := &e.slots[ctx.Slot]
	if ctx.KeyY != nil && (s.keyY == nil || !bytes.Equal(s.keyY, ctx.KeyY)) {
		if err := e.SetKeyY(ctx.Slot, ctx.KeyY); err != nil {
			return err
		}
	}
	if s.normal == nil {
		return fmt.Errorf("engine: no key in key slot 0x%02X", ctx.Slot)
	}
	return nil
}

// Installs returns how many KeyY installs have been performed so far.
func (e *Engine) Installs() int {
	return e.installs
}

// HasKey reports whether the slot currently holds a usable key.
func (e *Engine) HasKey(slot int) bool {
	return checkSlot(slot) == nil && e.slots[slot].normal != nil
}

// HasKeyX reports whether the slot holds a KeyX.
func (e *Engine) HasKeyX(slot int) bool {
	return checkSlot(slot) == nil && e.slots[slot].keyX != nil
}

// NewBlockMode returns a BlockMode transforming blocks with the key currently in the given slot,
// starting at the given counter.
func (e *Engine) NewBlockMode(slot int, ctr ctrutil.Counter, mode Mode) (*CounterMode, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	block := e.slots[slot].normal
	if block == nil {
		return nil, fmt.Errorf("engine: no key in key slot 0x%02X", slot)
	}
	switch mode {
	case ModeCTR, ModeTWLCTR, ModeCBCDecrypt:
	default:
		return nil, fmt.Errorf("engine: unsupported %v", mode)
	}
	return &CounterMode{
		block: block,
		ctr:   ctr,
		mode:  mode,
	}, nil
}

// CounterMode processes blocks one at a time the way the engine does: load the counter
// register, transform one block, advance the counter.
type CounterMode struct {
	block cipher.Block
	ctr   ctrutil.Counter
	mode  Mode
	ks    [BlockSize]byte
	prev  [BlockSize]byte
}

var _ cipher.BlockMode = &CounterMode{}

// BlockSize implements cipher.BlockMode.
func (m *CounterMode) BlockSize() int {
	return BlockSize
}

// Counter returns the counter register value for the next block.
func (m *CounterMode) Counter() ctrutil.Counter {
	return m.ctr
}

// CryptBlocks implements cipher.BlockMode. In CBC mode the counter register follows the
// chaining value instead of being incremented.
func (m *CounterMode) CryptBlocks(dst, src []byte) {
	if len(src)%BlockSize != 0 {
		panic("ctrdecrypt: input not full blocks")
	}
	if len(dst) < len(src) {
		panic("ctrdecrypt: output smaller than input")
	}

	for i := 0; i < len(src); i += BlockSize {
		in := src[i : i+BlockSize]
		out := dst[i : i+BlockSize]

		switch m.mode {
		case ModeCTR:
			m.block.Encrypt(m.ks[:], m.ctr[:])
			subtle.XORBytes(out, in, m.ks[:])
			m.ctr.Increment()
		case ModeTWLCTR:
			m.block.Encrypt(m.ks[:], m.ctr[:])
			ctrutil.ReverseBlock(m.ks[:])
			subtle.XORBytes(out, in, m.ks[:])
			m.ctr.Increment()
		case ModeCBCDecrypt:
			copy(m.prev[:], in)
			m.block.Decrypt(m.ks[:], in)
			subtle.XORBytes(out, m.ks[:], m.ctr[:])
			m.ctr = m.prev
		}
	}
}

// CryptoJob describes one in-place transform of a buffer.
type CryptoJob struct {
	KeySlot int
	Counter ctrutil.Counter
	SetKeyY bool
	KeyY    [16]byte
	Mode    Mode
}

// DecryptBuffer transforms buf in place. When SetKeyY is set, the KeyY is made active first and
// the flag is cleared. On return, Counter holds the value following the last processed block.
func (e *Engine) DecryptBuffer(job *CryptoJob, buf []byte) error {
	if len(buf)%BlockSize != 0 {
		return fmt.Errorf("engine: buffer size 0x%x is not a multiple of %d", len(buf), BlockSize)
	}

	ctx := KeyContext{Slot: job.KeySlot}
	if job.SetKeyY {
		ctx.KeyY = job.KeyY[:]
	}
	if err := e.Use(ctx); err != nil {
		return err
	}
	job.SetKeyY = false

	mode, err := e.NewBlockMode(job.KeySlot, job.Counter, job.Mode)
	if err != nil {
		return err
	}
	mode.CryptBlocks(buf, buf)
	job.Counter = mode.Counter()
	return nil
}

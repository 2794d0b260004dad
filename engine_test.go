package ctrdecrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/connesc/ctrdecrypt/ctrutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i>>8)
	}
	return data
}

func TestEngineCTRMatchesStdlib(t *testing.T) {
	key := testKey(0x21)
	e := NewEngine()
	require.NoError(t, e.SetNormalKey(0x11, key))

	var ctr ctrutil.Counter
	copy(ctr[:], bytes.Repeat([]byte{0xFF}, 15))

	data := testData(0x400)
	job := CryptoJob{KeySlot: 0x11, Counter: ctr, Mode: ModeCTR}
	got := append([]byte(nil), data...)
	require.NoError(t, e.DecryptBuffer(&job, got))

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	want := make([]byte, len(data))
	cipher.NewCTR(block, ctr[:]).XORKeyStream(want, data)

	assert.Equal(t, want, got)

	next := ctr
	next.Add(0x400 / BlockSize)
	assert.Equal(t, next, job.Counter)
}

func TestEngineTWLCTRReversesKeystream(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetNormalKey(0x03, testKey(0x33)))
	ctr := ctrutil.CounterFromBytes(testKey(0x01))

	ctrStream := make([]byte, 0x100)
	job := CryptoJob{KeySlot: 0x03, Counter: ctr, Mode: ModeCTR}
	require.NoError(t, e.DecryptBuffer(&job, ctrStream))

	twlStream := make([]byte, 0x100)
	job = CryptoJob{KeySlot: 0x03, Counter: ctr, Mode: ModeTWLCTR}
	require.NoError(t, e.DecryptBuffer(&job, twlStream))

	for i := 0; i < len(twlStream); i += BlockSize {
		ctrutil.ReverseBlock(twlStream[i : i+BlockSize])
	}
	assert.Equal(t, ctrStream, twlStream)
}

func TestEngineTWLCTRIsSymmetric(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetNormalKey(0x03, testKey(0x33)))
	ctr := ctrutil.CounterFromBytes(testKey(0x02))

	data := testData(0x200)
	buf := append([]byte(nil), data...)
	for i := 0; i < 2; i++ {
		job := CryptoJob{KeySlot: 0x03, Counter: ctr, Mode: ModeTWLCTR}
		require.NoError(t, e.DecryptBuffer(&job, buf))
	}
	assert.Equal(t, data, buf)
}

func TestEngineCBCMatchesStdlib(t *testing.T) {
	keyX := testKey(0x4D)
	keyY := testKey(0x5E)
	e := NewEngine()
	require.NoError(t, e.SetKeyX(0x3D, keyX))

	iv := ctrutil.CounterFromBytes([]byte{0, 4, 0, 1, 0, 0, 0x20, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	data := testData(0x40)

	job := CryptoJob{KeySlot: 0x3D, Counter: iv, SetKeyY: true, Mode: ModeCBCDecrypt}
	copy(job.KeyY[:], keyY)
	got := append([]byte(nil), data...)
	require.NoError(t, e.DecryptBuffer(&job, got))
	assert.False(t, job.SetKeyY)

	normal := ctrutil.ScrambleKey(keyX, keyY)
	block, err := aes.NewCipher(normal[:])
	require.NoError(t, err)
	want := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(want, data)

	assert.Equal(t, want, got)
	assert.Equal(t, ctrutil.CounterFromBytes(data[0x30:]), job.Counter)
}

func TestEngineInstallsOnlyWhenKeyYDiffers(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetKeyX(0x2C, testKey(0x3C)))

	a := testKey(0x0A)
	b := testKey(0x0B)

	require.NoError(t, e.Use(KeyContext{Slot: 0x2C, KeyY: a}))
	require.NoError(t, e.Use(KeyContext{Slot: 0x2C, KeyY: a}))
	require.NoError(t, e.Use(KeyContext{Slot: 0x2C}))
	assert.Equal(t, 1, e.Installs())

	require.NoError(t, e.Use(KeyContext{Slot: 0x2C, KeyY: b}))
	require.NoError(t, e.Use(KeyContext{Slot: 0x2C, KeyY: a}))
	assert.Equal(t, 3, e.Installs())

	require.NoError(t, e.SetKeyX(0x2C, testKey(0x3D)))
	require.NoError(t, e.Use(KeyContext{Slot: 0x2C, KeyY: a}))
	assert.Equal(t, 4, e.Installs())
}

func TestEngineErrors(t *testing.T) {
	e := NewEngine()

	assert.Error(t, e.SetKeyX(NumKeySlots, testKey(1)))
	assert.Error(t, e.SetNormalKey(0x04, make([]byte, 8)))
	assert.Error(t, e.SetKeyY(0x2C, testKey(1)), "KeyY without KeyX")
	assert.Error(t, e.Use(KeyContext{Slot: 0x04}), "empty slot")

	require.NoError(t, e.SetNormalKey(0x04, testKey(1)))
	assert.True(t, e.HasKey(0x04))
	assert.False(t, e.HasKeyX(0x04))

	job := CryptoJob{KeySlot: 0x04}
	assert.Error(t, e.DecryptBuffer(&job, make([]byte, 15)))

	_, err := e.NewBlockMode(0x04, ctrutil.Counter{}, Mode(42))
	assert.Error(t, err)
}

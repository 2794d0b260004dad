package ctrdecrypt

import (
	"fmt"

	"github.com/connesc/ctrdecrypt/ctrutil"
)

// CIDSize is the size of the NAND CID.
const CIDSize = 16

// NandCounter derives NAND counters from the console CID.
type NandCounter struct {
	modernOffset int64
	twlBase      ctrutil.Counter
	ctrBase      ctrutil.Counter
}

// NewNandCounter for the given CID. Offsets below modernOffset use the TWL scheme.
func NewNandCounter(cid []byte, modernOffset int64) (*NandCounter, error) {
	if len(cid) != CIDSize {
		return nil, fmt.Errorf("counter: CID must be %d bytes long, got %d", CIDSize, len(cid))
	}

	n := &NandCounter{modernOffset: modernOffset}
	n.ctrBase = ctrutil.CounterFromBytes(sha256Hash(cid)[:16])

	// little endian and reversed order
	sha1sum := sha1Hash(cid)
	for i := 0; i < 16; i++ {
		n.twlBase[i] = sha1sum[15-i]
	}

	return n, nil
}

// At returns the counter of the block holding the given absolute NAND offset.
func (n *NandCounter) At(offset int64) ctrutil.Counter {
	ctr := n.ctrBase
	if offset < n.modernOffset {
		ctr = n.twlBase
	}
	ctr.Add(uint64(offset) / BlockSize)
	return ctr
}

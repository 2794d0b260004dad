package ctrdecrypt

// ScratchSize is the size of the buffer used for every chunked operation.
const ScratchSize = 1 << 20

// scratch is the single buffer reused by chunked operations. It has one holder at a time.
type scratch struct {
	buf  []byte
	held bool
}

func newScratch() *scratch {
	return &scratch{buf: make([]byte, ScratchSize)}
}

func (s *scratch) hold() []byte {
	if s.held {
		panic("ctrdecrypt: scratch buffer already in use")
	}
	s.held = true
	return s.buf
}

func (s *scratch) release() {
	s.held = false
}

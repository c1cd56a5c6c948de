package bpu

// HistLenBits is the folded global branch history register's bit length,
// ported from XSIFU_HIST_LEN (128, rounded up to a multiple of 64).
const HistLenBits = 128

const histWords = HistLenBits/64 + 1

// BrHist is a circular shift register recording the last HistLenBits
// branch outcomes. push moves the write pointer backward (wrapping), and
// Fold XORs a histlen-bit window, taglen bits at a time, to compress it
// into the index/tag width a prediction table actually uses. The fold
// must handle a window that straddles the buffer's wrap point.
type BrHist struct {
	data [histWords]uint64
	ptr  uint32
}

// Push records one more branch outcome.
func (h *BrHist) Push(taken bool) {
	if h.ptr == 0 {
		h.ptr = HistLenBits - 1
	} else {
		h.ptr--
	}
	word, bit := h.ptr/64, h.ptr%64
	if taken {
		h.data[word] |= 1 << bit
	} else {
		h.data[word] &^= 1 << bit
	}
}

// Clear resets the history to all-zero.
func (h *BrHist) Clear() {
	for i := range h.data {
		h.data[i] = 0
	}
	h.ptr = 0
}

// Snapshot returns a copy of the current state, for checkpointing at
// branch dispatch and restoring on misprediction.
func (h *BrHist) Snapshot() BrHist { return *h }

// Restore replaces this history with a previously captured snapshot.
func (h *BrHist) Restore(s BrHist) { *h = s }

// Fold XORs histlen bits of history, starting at the write pointer, in
// taglen-wide chunks, producing a value at most taglen bits wide. This is
// the entropy-compression step every table's index/tag hash is built on.
func (h *BrHist) Fold(histlen, taglen uint32) uint64 {
	if histlen == 0 {
		return 0
	}
	// mirror data[0] into the sentinel word so a window starting near the
	// end of the buffer can read past it without a second branch.
	h.data[histWords-1] = h.data[0]
	var res uint64
	for i := uint32(0); i < histlen; i += taglen {
		length := taglen
		if length > histlen-i {
			length = histlen - i
		}
		pos := (h.ptr + i) % HistLenBits
		off := pos % 64
		if off+length <= 64 {
			res ^= ((uint64(1) << length) - 1) & (h.data[pos/64] >> off)
		} else {
			lowLen := 64 - off
			highLen := length - lowLen
			res ^= ((h.data[pos/64+1] & ((uint64(1) << highLen) - 1)) << lowLen) | (h.data[pos/64] >> off)
		}
	}
	return res
}

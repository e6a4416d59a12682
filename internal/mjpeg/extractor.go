// Package mjpeg splits a motion-JPEG byte stream into individual frames.
//
// The stream carries no framing metadata, so frames are recovered purely from
// the JPEG start-of-image (FF D8) and end-of-image (FF D9) markers. Frame
// contents are never inspected beyond those markers.
package mjpeg

import "bytes"

var (
	startMarker = []byte{0xFF, 0xD8}
	endMarker   = []byte{0xFF, 0xD9}
)

// Frame is one complete JPEG image, start marker through end marker inclusive.
type Frame []byte

// Extractor reassembles frames from arbitrarily sized chunks.
//
// An Extractor is not safe for concurrent use. There is no upper bound on the
// accumulator: a producer that never emits an end marker grows it forever.
type Extractor struct {
	buf []byte
	// open reports whether buf[0:2] is a start marker whose end marker has not
	// been seen yet; scanned is how far past the start the end search got.
	open    bool
	scanned int
}

// NewExtractor returns an Extractor with an empty accumulator.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Feed appends chunk to the accumulator and returns every frame completed by
// it, in stream order. The returned frames do not alias the accumulator.
func (e *Extractor) Feed(chunk []byte) []Frame {
	e.buf = append(e.buf, chunk...)

	var frames []Frame
	for {
		if !e.open {
			start := bytes.Index(e.buf, startMarker)
			if start < 0 {
				e.discardGarbage()
				return frames
			}
			e.buf = e.buf[start:]
			e.open = true
			e.scanned = len(startMarker)
		}

		// Resume one byte early in case the previous feed ended on a lone FF.
		from := e.scanned - 1
		if from < len(startMarker) {
			from = len(startMarker)
		}
		end := bytes.Index(e.buf[from:], endMarker)
		if end < 0 {
			e.scanned = len(e.buf)
			return frames
		}

		frameEnd := from + end + len(endMarker)
		frame := make(Frame, frameEnd)
		copy(frame, e.buf[:frameEnd])
		frames = append(frames, frame)

		e.buf = e.buf[frameEnd:]
		e.open = false
		e.scanned = 0
	}
}

// discardGarbage drops bytes that cannot belong to a frame. A trailing FF is
// kept because it may be the first half of a start marker.
func (e *Extractor) discardGarbage() {
	if n := len(e.buf); n > 0 && e.buf[n-1] == startMarker[0] {
		e.buf = append(e.buf[:0], startMarker[0])
		return
	}
	e.buf = e.buf[:0]
}

// Buffered returns the number of bytes held waiting for more input.
func (e *Extractor) Buffered() int {
	return len(e.buf)
}

// Pending returns a copy of the unresolved accumulator contents.
func (e *Extractor) Pending() []byte {
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out
}

// Reset empties the accumulator.
func (e *Extractor) Reset() {
	e.buf = nil
	e.open = false
	e.scanned = 0
}

package soap

import (
	"errors"
	"io"
)

var (
	ErrNotMarked   = errors.New("soap: reset without mark")
	ErrMarkInvalid = errors.New("soap: lookahead limit exceeded, mark invalidated")
)

// Rewinder is a reader that can return to a marked position. Bytes read after
// Mark are retained until the reader is rewound, so a consumer reading after
// Reset sees exactly what the source produced from the mark onwards.
//
// A Rewinder belongs to one message and is not safe for concurrent use.
type Rewinder struct {
	src   io.Reader
	limit int

	buf     []byte
	pos     int
	marked  bool
	invalid bool
}

// NewRewinder wraps r. A positive limit caps the number of bytes kept after
// Mark. Reads are shortened so that a consumer never pulls more than limit
// bytes before it asks again; receiving a byte past the limit invalidates
// the mark.
func NewRewinder(r io.Reader, limit int) *Rewinder {
	if rw, ok := r.(*Rewinder); ok && rw.limit == limit {
		return rw
	}
	return &Rewinder{src: r, limit: limit}
}

// Mark records the current position as the target of the next Reset.
func (r *Rewinder) Mark() {
	r.buf = append([]byte(nil), r.buf[r.pos:]...)
	r.pos = 0
	r.marked = true
	r.invalid = false
}

// Reset rewinds to the marked position. The mark survives, so Reset may be
// called again later.
func (r *Rewinder) Reset() error {
	if !r.marked {
		if r.invalid {
			return ErrMarkInvalid
		}
		return ErrNotMarked
	}
	r.pos = 0
	return nil
}

func (r *Rewinder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos < len(r.buf) {
		n := copy(p, r.buf[r.pos:])
		r.pos += n
		if !r.marked && r.pos == len(r.buf) {
			r.buf, r.pos = nil, 0
		}
		return n, nil
	}

	if !r.marked {
		return r.src.Read(p)
	}

	if r.limit > 0 {
		remaining := r.limit - len(r.buf)
		if remaining <= 0 {
			// Only bytes that actually arrive past the limit break the
			// mark; a source that is exhausted right at the limit does not.
			n, err := r.src.Read(p)
			if n > 0 {
				r.buf, r.pos = nil, 0
				r.marked = false
				r.invalid = true
			}
			return n, err
		}
		if len(p) > remaining {
			p = p[:remaining]
		}
	}

	n, err := r.src.Read(p)
	if n > 0 {
		r.buf = append(r.buf, p[:n]...)
		r.pos = len(r.buf)
	}
	return n, err
}

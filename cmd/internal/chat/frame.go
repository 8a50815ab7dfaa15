package chat

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrFrameTooLarge is returned for a line longer than the frame limit.
// The oversized line has been consumed; the stream stays usable.
var ErrFrameTooLarge = errors.New("frame too large")

// FrameReader splits a byte stream into newline-delimited frames.
type FrameReader struct {
	r   *bufio.Reader
	max int
}

// NewFrameReader wraps r. maxBytes bounds a frame, excluding its terminator.
func NewFrameReader(r io.Reader, maxBytes int) *FrameReader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxFrameBytes
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 4096), max: maxBytes}
}

// ReadFrame returns the next non-blank frame with "\n" or "\r\n" stripped.
// A final unterminated frame before EOF is returned as-is.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		line, err := fr.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (fr *FrameReader) readLine() ([]byte, error) {
	var (
		buf      []byte
		tooLarge bool
	)
	for {
		chunk, err := fr.r.ReadSlice('\n')
		if !tooLarge {
			buf = append(buf, chunk...)
			n := len(buf)
			if err == nil {
				n-- // terminator
			}
			if n > fr.max {
				tooLarge = true
				buf = nil
			}
		}

		switch {
		case err == nil:
			if tooLarge {
				return nil, ErrFrameTooLarge
			}
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLarge {
				return nil, ErrFrameTooLarge
			}
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

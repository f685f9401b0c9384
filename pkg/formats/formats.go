// Package formats provides readers and writers for Assetto Corsa binary
// formats: the KN5 track model container and the fast_lane.ai driving line.
//
// All values are little-endian. Strings are an int32 byte length followed
// by UTF-8 bytes without terminator.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned when a buffer ends before a record is complete.
var ErrTruncated = errors.New("truncated data")

// maxStringLength bounds string lengths read from untrusted files.
const maxStringLength = 1 << 16

// binWriter writes little-endian values and keeps the first error.
type binWriter struct {
	w   io.Writer
	err error
}

func (bw *binWriter) write(v any) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binWriter) raw(b []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

func (bw *binWriter) i32(v int32)   { bw.write(v) }
func (bw *binWriter) f32(v float32) { bw.write(v) }

func (bw *binWriter) u8(v bool) {
	if v {
		bw.write(uint8(1))
		return
	}
	bw.write(uint8(0))
}

func (bw *binWriter) str(s string) {
	bw.i32(int32(len(s)))
	bw.raw([]byte(s))
}

// binReader reads little-endian values from a byte slice and keeps the
// first error. Reading past the end yields ErrTruncated.
type binReader struct {
	r   *bytes.Reader
	err error
}

func newBinReader(data []byte) *binReader {
	return &binReader{r: bytes.NewReader(data)}
}

func (br *binReader) read(v any) {
	if br.err != nil {
		return
	}
	if err := binary.Read(br.r, binary.LittleEndian, v); err != nil {
		br.err = ErrTruncated
	}
}

func (br *binReader) i32() int32 {
	var v int32
	br.read(&v)
	return v
}

func (br *binReader) f32() float32 {
	var v float32
	br.read(&v)
	return v
}

func (br *binReader) u8() bool {
	var v uint8
	br.read(&v)
	return v != 0
}

func (br *binReader) bytes(n int) []byte {
	if br.err != nil {
		return nil
	}
	if n < 0 || n > br.r.Len() {
		br.err = ErrTruncated
		return nil
	}
	buf := make([]byte, n)
	_, _ = io.ReadFull(br.r, buf)
	return buf
}

// count reads an int32 element count and checks that at least
// count*minSize bytes remain.
func (br *binReader) count(minSize int) int {
	n := br.i32()
	if br.err != nil {
		return 0
	}
	if n < 0 || int64(n)*int64(minSize) > int64(br.r.Len()) {
		br.err = ErrTruncated
		return 0
	}
	return int(n)
}

func (br *binReader) str() string {
	n := br.i32()
	if br.err != nil {
		return ""
	}
	if n < 0 || n > maxStringLength {
		br.err = ErrTruncated
		return ""
	}
	return string(br.bytes(int(n)))
}

func (br *binReader) skip(n int) {
	br.bytes(n)
}


// fast_lane.ai driving line reader and writer.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// AI format errors.
var (
	ErrUnsupportedAIVersion = errors.New("unsupported AI line version")
	ErrAIExtraCount         = errors.New("AI line extra count does not match point count")
)

// AIVersion is the only driving line version written by this package.
const AIVersion = 7

// AIPoint is one ideal-line sample.
type AIPoint struct {
	Position [3]float32
	Distance float32 // Cumulative arc length from the first point
	ID       int32
}

// AIExtra carries per-point driving hints (72 bytes).
type AIExtra struct {
	Speed        float32 // m/s
	Gas          float32
	Brake        float32
	ObsoleteLatG float32
	Radius       float32
	SideLeft     float32 // Distance to the left track edge
	SideRight    float32 // Distance to the right track edge
	Camber       float32
	Direction    float32
	Normal       [3]float32
	Length       float32 // Distance to the next point
	Forward      [3]float32
	Tag          float32
	Grade        float32
}

// AILine represents a fast_lane.ai file.
//
// LapTime and SampleCount describe a recorded lap and stay zero for a
// generated line. The format has no header slot for point spacing: the
// spacing a line was built with is carried per point by AIExtra.Length, and
// the total is the last Distance plus the last Length.
type AILine struct {
	Version     int32
	LapTime     int32
	SampleCount int32
	Points      []AIPoint
	Extras      []AIExtra // Empty or one per point
}

// WriteAI serializes line to w.
func WriteAI(w io.Writer, line *AILine) error {
	if line.Version != AIVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedAIVersion, line.Version)
	}
	if len(line.Extras) != 0 && len(line.Extras) != len(line.Points) {
		return fmt.Errorf("%w: %d extras, %d points", ErrAIExtraCount, len(line.Extras), len(line.Points))
	}

	bw := &binWriter{w: w}
	bw.i32(line.Version)
	bw.i32(int32(len(line.Points)))
	bw.i32(line.LapTime)
	bw.i32(line.SampleCount)
	bw.write(line.Points)
	bw.i32(int32(len(line.Extras)))
	bw.write(line.Extras)
	return bw.err
}

// MarshalAI serializes line into a new byte slice.
func MarshalAI(line *AILine) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteAI(&buf, line); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseAI parses fast_lane.ai data. Trailing sections are ignored.
func ParseAI(data []byte) (*AILine, error) {
	br := newBinReader(data)
	line := &AILine{Version: br.i32()}
	if br.err != nil {
		return nil, br.err
	}
	if line.Version != AIVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAIVersion, line.Version)
	}

	count := br.i32()
	line.LapTime = br.i32()
	line.SampleCount = br.i32()
	if br.err != nil {
		return nil, br.err
	}
	if count < 0 || int64(count)*20 > int64(br.r.Len()) {
		return nil, ErrTruncated
	}
	line.Points = make([]AIPoint, count)
	br.read(line.Points)

	extraCount := br.count(72)
	if br.err != nil {
		return nil, fmt.Errorf("parsing extras: %w", br.err)
	}
	if extraCount != 0 && extraCount != int(count) {
		return nil, fmt.Errorf("%w: %d extras, %d points", ErrAIExtraCount, extraCount, count)
	}
	if extraCount > 0 {
		line.Extras = make([]AIExtra, extraCount)
		br.read(line.Extras)
	}
	if br.err != nil {
		return nil, br.err
	}
	return line, nil
}

// ParseAIFile parses a fast_lane.ai file from disk.
func ParseAIFile(path string) (*AILine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading AI file: %w", err)
	}
	return ParseAI(data)
}

// Length returns the total distance of the line including the closing segment.
func (l *AILine) Length() float32 {
	if len(l.Points) == 0 {
		return 0
	}
	last := len(l.Points) - 1
	if len(l.Extras) == len(l.Points) {
		return l.Points[last].Distance + l.Extras[last].Length
	}
	return l.Points[last].Distance
}

package cluster

import (
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MMapWriter writes sequentially into a memory-mapped file.
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{data: data}
}

func (w *MMapWriter) WriteBytes(b []byte) {
	copy(w.data[w.offset:], b)
	w.offset += len(b)
}

// MMapReader reads sequentially from a memory-mapped file. Callers check
// Remaining before reading.
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{data: data}
}

func (r *MMapReader) Remaining() int { return len(r.data) - r.offset }

// Next returns the next n bytes without copying them.
func (r *MMapReader) Next(n int) []byte {
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

// SavePointsMMap writes points as a raw dataset through a writable mapping.
func SavePointsMMap(filename string, points []Point) error {
	if uint64(len(points)) > math.MaxUint32 {
		return fmt.Errorf("too many points for one file: %d", len(points))
	}
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size := int64(pointsHeaderSize) + int64(len(points))*pointRecordSize
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}

	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	defer data.Unmap()

	writer := NewMMapWriter(data)
	header := make([]byte, pointsHeaderSize)
	encodeHeader(header, len(points))
	writer.WriteBytes(header)

	record := make([]byte, pointRecordSize)
	for _, p := range points {
		encodePointRecord(record, p)
		writer.WriteBytes(record)
	}
	return data.Flush()
}

// LoadPointsMMap reads a raw dataset through a read-only mapping.
func LoadPointsMMap(filename string) ([]Point, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() < pointsHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrBadPointsFile, info.Size())
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	defer data.Unmap()

	reader := NewMMapReader(data)
	count, err := decodeHeader(reader.Next(pointsHeaderSize))
	if err != nil {
		return nil, err
	}
	if want := count * pointRecordSize; reader.Remaining() < want {
		return nil, fmt.Errorf("%w: %d points need %d bytes, have %d", ErrBadPointsFile, count, want, reader.Remaining())
	}

	points := make([]Point, count)
	for i := range points {
		points[i] = decodePointRecord(reader.Next(pointRecordSize))
	}
	return points, nil
}

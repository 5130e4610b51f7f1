package cluster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Point datasets share one little-endian layout: a 12 byte header (magic,
// version, count) followed by fixed 25 byte records (lng, lat, attribute
// flag, attribute). Compressed files wrap the layout in zstd; .pts files
// hold it raw and are read through mmap.
const (
	pointsMagic      = "SCPT"
	pointsVersion    = 1
	pointsHeaderSize = 12
	pointRecordSize  = 25

	CompressedPointsExt = ".zst"
	RawPointsExt        = ".pts"
)

// ErrBadPointsFile reports a dataset that is truncated or not in the layout above.
var ErrBadPointsFile = errors.New("malformed points file")

func encodeHeader(buf []byte, count int) {
	copy(buf[0:4], pointsMagic)
	binary.LittleEndian.PutUint32(buf[4:8], pointsVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(count))
}

func decodeHeader(buf []byte) (int, error) {
	if string(buf[0:4]) != pointsMagic {
		return 0, fmt.Errorf("%w: bad magic %q", ErrBadPointsFile, buf[0:4])
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != pointsVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrBadPointsFile, v)
	}
	return int(binary.LittleEndian.Uint32(buf[8:12])), nil
}

func encodePointRecord(buf []byte, p Point) {
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(p.Lng))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(p.Lat))
	buf[16] = 0
	binary.LittleEndian.PutUint64(buf[17:25], 0)
	if p.Attribute != nil {
		buf[16] = 1
		binary.LittleEndian.PutUint64(buf[17:25], uint64(*p.Attribute))
	}
}

func decodePointRecord(buf []byte) Point {
	p := Point{
		Lng: math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
		Lat: math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
	}
	if buf[16] == 1 {
		p.Attribute = Attr(int64(binary.LittleEndian.Uint64(buf[17:25])))
	}
	return p
}

// SavePointsCompressed writes points as a zstd compressed dataset.
func SavePointsCompressed(filename string, points []Point) error {
	if uint64(len(points)) > math.MaxUint32 {
		return fmt.Errorf("too many points for one file: %d", len(points))
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer enc.Close()

	header := make([]byte, pointsHeaderSize)
	encodeHeader(header, len(points))
	if _, err := enc.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]byte, pointRecordSize)
	for _, p := range points {
		encodePointRecord(record, p)
		if _, err := enc.Write(record); err != nil {
			return fmt.Errorf("failed to write point: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return file.Sync()
}

// LoadPointsCompressed reads a dataset written by SavePointsCompressed.
func LoadPointsCompressed(filename string) ([]Point, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(bufio.NewReaderSize(file, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	header := make([]byte, pointsHeaderSize)
	if _, err := io.ReadFull(dec, header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrBadPointsFile, err)
	}
	count, err := decodeHeader(header)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, min(count, 1<<20))
	record := make([]byte, pointRecordSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(dec, record); err != nil {
			return nil, fmt.Errorf("%w: reading point %d of %d: %v", ErrBadPointsFile, i, count, err)
		}
		points = append(points, decodePointRecord(record))
	}
	return points, nil
}

// LoadPoints reads a dataset, choosing the reader by file extension.
func LoadPoints(filename string) ([]Point, error) {
	start := time.Now()
	var (
		points []Point
		err    error
	)
	switch ext := filepath.Ext(filename); ext {
	case CompressedPointsExt:
		points, err = LoadPointsCompressed(filename)
	case RawPointsExt:
		points, err = LoadPointsMMap(filename)
	default:
		return nil, fmt.Errorf("unsupported points file extension %q", ext)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[Storage] loaded %d points from %s in %v", len(points), filename, time.Since(start))
	return points, nil
}

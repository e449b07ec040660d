// Package storage encodes exported readings as a compact columnar archive.
//
// Layout (little endian):
//
//	header   magic u32 | version u32 | rows u64 | columns u32 | "HNXA" | zero padding to 32 bytes
//	columns  per column: encoding u32 | size u32 | compressed bytes
//	footer   metadata version u32 | columns u32 | per column: nameLen u32, name, type u32, offset u64, size u64, rows u64
//	trailer  footer size u32
//
// The timestamp column is delta-of-delta coded, every channel column is XOR
// coded.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/healnexus/internal/compression"
	"github.com/healnexus/internal/models"
)

const (
	MagicNumber     = 0x484e5841
	FormatVersion   = 1
	HeaderSize      = 32
	MetadataVersion = 1

	columnTimestamp = 1
	columnFloat     = 2

	encodingGorilla = 1
)

var ErrCorrupt = errors.New("storage: corrupt archive")

type columnMeta struct {
	name   string
	kind   uint32
	offset uint64
	size   uint64
	rows   uint64
}

// WriteArchive writes readings, in the given order, to w.
func WriteArchive(w io.Writer, readings []models.Reading) error {
	rows := len(readings)
	names := append([]string{"timestamp"}, models.ChannelNames...)

	timestamps := make([]int64, rows)
	channels := make([][]float64, len(models.ChannelNames))
	for i := range channels {
		channels[i] = make([]float64, rows)
	}
	for r, reading := range readings {
		timestamps[r] = reading.Timestamp
		for c, v := range reading.Values() {
			channels[c][r] = v
		}
	}

	var buf bytes.Buffer
	buf.Write(buildHeader(rows, len(names)))

	metas := make([]columnMeta, 0, len(names))
	appendColumn := func(name string, kind uint32, data []byte) {
		offset := uint64(buf.Len())
		buf.Write(encodeColumn(data))
		metas = append(metas, columnMeta{
			name:   name,
			kind:   kind,
			offset: offset,
			size:   uint64(buf.Len()) - offset,
			rows:   uint64(rows),
		})
	}

	appendColumn(names[0], columnTimestamp, compression.CompressInt64(timestamps))
	for c, name := range models.ChannelNames {
		appendColumn(name, columnFloat, compression.CompressFloat64(channels[c]))
	}

	footer := buildFooter(metas)
	buf.Write(footer)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(footer)))
	buf.Write(size[:])

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

func buildHeader(rows, columns int) []byte {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(rows))
	binary.LittleEndian.PutUint32(header[16:20], uint32(columns))
	copy(header[20:24], "HNXA")
	return header
}

func encodeColumn(data []byte) []byte {
	out := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(out[0:4], encodingGorilla)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(data)))
	copy(out[8:], data)
	return out
}

func buildFooter(metas []columnMeta) []byte {
	footer := binary.LittleEndian.AppendUint32(nil, MetadataVersion)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(len(metas)))
	for _, m := range metas {
		footer = binary.LittleEndian.AppendUint32(footer, uint32(len(m.name)))
		footer = append(footer, m.name...)
		footer = binary.LittleEndian.AppendUint32(footer, m.kind)
		footer = binary.LittleEndian.AppendUint64(footer, m.offset)
		footer = binary.LittleEndian.AppendUint64(footer, m.size)
		footer = binary.LittleEndian.AppendUint64(footer, m.rows)
	}
	return footer
}

// ReadArchive decodes an archive produced by WriteArchive. Storage keys are
// not part of the archive.
func ReadArchive(data []byte) ([]models.Reading, error) {
	if len(data) < HeaderSize+4 {
		return nil, fmt.Errorf("%w: %d bytes is too small", ErrCorrupt, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != MagicNumber {
		return nil, fmt.Errorf("%w: invalid magic number", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	rows := binary.LittleEndian.Uint64(data[8:16])

	footerSizeOffset := len(data) - 4
	footerSize := int(binary.LittleEndian.Uint32(data[footerSizeOffset:]))
	footerStart := footerSizeOffset - footerSize
	if footerStart < HeaderSize {
		return nil, fmt.Errorf("%w: footer out of range", ErrCorrupt)
	}
	// Every row costs at least one bit per column.
	if rows > uint64(footerStart)*8 {
		return nil, fmt.Errorf("%w: %d rows cannot fit in %d bytes", ErrCorrupt, rows, footerStart)
	}
	metas, err := parseFooter(data[footerStart:footerSizeOffset])
	if err != nil {
		return nil, err
	}

	byName := make(map[string]columnMeta, len(metas))
	for _, m := range metas {
		end := uint64(footerStart)
		if m.rows != rows || m.size < 8 || m.offset < HeaderSize || m.size > end || m.offset > end-m.size {
			return nil, fmt.Errorf("%w: column %q out of range", ErrCorrupt, m.name)
		}
		byName[m.name] = m
	}

	column := func(name string) ([]byte, error) {
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrCorrupt, name)
		}
		return data[m.offset+8 : m.offset+m.size], nil
	}

	tsData, err := column("timestamp")
	if err != nil {
		return nil, err
	}
	timestamps, err := compression.DecompressInt64(tsData, int(rows))
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp column: %v", ErrCorrupt, err)
	}

	channels := make([][]float64, len(models.ChannelNames))
	for c, name := range models.ChannelNames {
		colData, err := column(name)
		if err != nil {
			return nil, err
		}
		channels[c], err = compression.DecompressFloat64(colData, int(rows))
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrCorrupt, name, err)
		}
	}

	readings := make([]models.Reading, rows)
	values := make([]float64, len(models.ChannelNames))
	for r := range readings {
		for c := range channels {
			values[c] = channels[c][r]
		}
		readings[r] = models.Reading{
			Snapshot:  models.SnapshotFromValues(values),
			Timestamp: timestamps[r],
		}
	}
	return readings, nil
}

func parseFooter(footer []byte) ([]columnMeta, error) {
	r := bytes.NewReader(footer)
	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: footer: %v", ErrCorrupt, err)
	}
	if version != MetadataVersion {
		return nil, fmt.Errorf("%w: unsupported metadata version %d", ErrCorrupt, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: footer: %v", ErrCorrupt, err)
	}

	metas := make([]columnMeta, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: footer: %v", ErrCorrupt, err)
		}
		if int(nameLen) > r.Len() {
			return nil, fmt.Errorf("%w: footer: column name out of range", ErrCorrupt)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("%w: footer: %v", ErrCorrupt, err)
		}
		var fixed struct {
			Kind   uint32
			Offset uint64
			Size   uint64
			Rows   uint64
		}
		if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
			return nil, fmt.Errorf("%w: footer: %v", ErrCorrupt, err)
		}
		metas = append(metas, columnMeta{
			name:   string(name),
			kind:   fixed.Kind,
			offset: fixed.Offset,
			size:   fixed.Size,
			rows:   fixed.Rows,
		})
	}
	return metas, nil
}

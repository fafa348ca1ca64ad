package voxel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	snapshotMagic   = "TVOX"
	snapshotVersion = 1
)

// ErrCorruptSnapshot is returned when a snapshot fails validation.
var ErrCorruptSnapshot = errors.New("voxel: corrupt snapshot")

// snapshotHeader is the fixed little-endian prefix after the magic.
type snapshotHeader struct {
	Version      uint8
	Width        uint32
	Height       uint32
	Length       uint32
	Scale        float64
	HeightOffset float64
	PayloadLen   uint32
}

func validDim(d uint32) bool {
	return d > 0 && d <= MaxResolution
}

// packBits stores one occupancy bit per cell, LSB first.
func (f *Field) packBits() []byte {
	out := make([]byte, (len(f.values)+7)/8)
	for i, v := range f.values {
		if v >= Surface {
			out[i>>3] |= 1 << (i & 7)
		}
	}
	return out
}

// MarshalBinary encodes the field as a zstd-compressed bitmap with an
// xxhash checksum of the uncompressed bits.
func (f *Field) MarshalBinary() ([]byte, error) {
	bits := f.packBits()
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("voxel: snapshot encoder: %w", err)
	}
	payload := enc.EncodeAll(bits, nil)
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("voxel: snapshot encoder: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(snapshotMagic)
	hdr := snapshotHeader{
		Version:      snapshotVersion,
		Width:        uint32(f.width),
		Height:       uint32(f.height),
		Length:       uint32(f.length),
		Scale:        f.scale,
		HeightOffset: f.heightOffset,
		PayloadLen:   uint32(len(payload)),
	}
	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	if _, err := out.Write(payload); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, xxhash.Sum64(bits)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// UnmarshalBinary replaces the field with the decoded snapshot. On error the
// receiver is left untouched.
func (f *Field) UnmarshalBinary(data []byte) error {
	if len(data) < len(snapshotMagic) || string(data[:len(snapshotMagic)]) != snapshotMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}
	r := bytes.NewReader(data[len(snapshotMagic):])
	var hdr snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, err)
	}
	if hdr.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, hdr.Version)
	}
	if !validDim(hdr.Width) || !validDim(hdr.Height) || !validDim(hdr.Length) || hdr.Scale <= 0 {
		return fmt.Errorf("%w: bad dimensions %dx%dx%d", ErrCorruptSnapshot, hdr.Width, hdr.Height, hdr.Length)
	}
	if int(hdr.PayloadLen) > r.Len()-8 {
		return fmt.Errorf("%w: truncated payload", ErrCorruptSnapshot)
	}
	payload := make([]byte, hdr.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrCorruptSnapshot, err)
	}
	var sum uint64
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return fmt.Errorf("%w: checksum: %v", ErrCorruptSnapshot, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("voxel: snapshot decoder: %w", err)
	}
	defer dec.Close()
	bits, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	n := int(hdr.Width) * int(hdr.Height) * int(hdr.Length)
	if len(bits) != (n+7)/8 {
		return fmt.Errorf("%w: bitmap holds %d bytes, want %d", ErrCorruptSnapshot, len(bits), (n+7)/8)
	}
	if xxhash.Sum64(bits) != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	values := make([]float32, n)
	for i := range values {
		if bits[i>>3]&(1<<(i&7)) != 0 {
			values[i] = Inside
		}
	}
	*f = Field{
		width:        int(hdr.Width),
		height:       int(hdr.Height),
		length:       int(hdr.Length),
		scale:        hdr.Scale,
		heightOffset: hdr.HeightOffset,
		values:       values,
	}
	return nil
}

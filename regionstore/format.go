package regionstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
)

const (
	// Magic marks the current region file layout.
	Magic uint32 = 0x000FEED9
	// LegacyMagic marks region files written before records carried a
	// clearance field.
	LegacyMagic uint32 = 0x000FEED8
	// FrontierMagic marks the frontier file.
	FrontierMagic uint32 = 0x000FEED0

	// FrontierName is the blob holding the frontier queue.
	FrontierName = "frontier.mesh"

	headerSize = 8
	ext        = ".mesh"
)

var (
	// ErrBadMagic is returned for files with an unknown magic number.
	ErrBadMagic = errors.New("regionstore: unknown magic number")
	// ErrTruncated is returned for files shorter than their header claims.
	ErrTruncated = errors.New("regionstore: truncated file")
)

// Name returns the blob name of region r: <shard>/<region>.mesh.
func Name(r handle.RegionHandle) string {
	return fmt.Sprintf("%d/%d%s", r.Shard(), uint32(r), ext)
}

// ParseName is the inverse of Name.
func ParseName(name string) (handle.RegionHandle, bool) {
	shard, file, ok := strings.Cut(name, "/")
	if !ok || !strings.HasSuffix(file, ext) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSuffix(file, ext), 10, 32)
	if err != nil {
		return 0, false
	}
	r := handle.RegionHandle(v)
	if strconv.FormatUint(uint64(r.Shard()), 10) != shard {
		return 0, false
	}
	return r, true
}

// Encode serializes a region:
//
//	[magic u32][count u32][handles u64 * count][records u64 * count]
//
// All integers are little endian.
func Encode(hs []handle.NodeHandle, recs []edges.Record) []byte {
	n := len(hs)
	buf := make([]byte, headerSize+16*n)
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(n))
	hcol := buf[headerSize:]
	rcol := buf[headerSize+8*n:]
	for i := range n {
		binary.LittleEndian.PutUint64(hcol[8*i:], uint64(hs[i]))
		binary.LittleEndian.PutUint64(rcol[8*i:], uint64(recs[i]))
	}
	return buf
}

// Decoded is the content of one region file.
type Decoded struct {
	Handles []handle.NodeHandle
	Records []edges.Record
	// Legacy is set when the file used LegacyMagic. Its records have been
	// given full clearance and need a clearance rebuild once loaded.
	Legacy bool
}

// Decode parses a region file. Legacy files are upgraded in place: the
// clearance field did not exist, so every record is given MaxClearance.
func Decode(data []byte) (Decoded, error) {
	var d Decoded
	if len(data) < headerSize {
		return d, ErrTruncated
	}
	switch magic := binary.LittleEndian.Uint32(data[0:]); magic {
	case Magic:
	case LegacyMagic:
		d.Legacy = true
	default:
		return d, fmt.Errorf("%w: %#08x", ErrBadMagic, magic)
	}

	n := int(binary.LittleEndian.Uint32(data[4:]))
	if uint64(len(data)) < headerSize+16*uint64(n) {
		return d, ErrTruncated
	}
	hcol := data[headerSize:]
	rcol := data[headerSize+8*n:]
	d.Handles = make([]handle.NodeHandle, n)
	d.Records = make([]edges.Record, n)
	for i := range n {
		d.Handles[i] = handle.NodeHandle(binary.LittleEndian.Uint64(hcol[8*i:]))
		rec := edges.Record(binary.LittleEndian.Uint64(rcol[8*i:]))
		if d.Legacy {
			rec = rec.WithClearance(edges.MaxClearance)
		}
		d.Records[i] = rec
	}
	return d, nil
}

// EncodeFrontier serializes the frontier: [magic u32]([handle u64])*.
func EncodeFrontier(hs []handle.NodeHandle) []byte {
	buf := make([]byte, 4+8*len(hs))
	binary.LittleEndian.PutUint32(buf, FrontierMagic)
	for i, h := range hs {
		binary.LittleEndian.PutUint64(buf[4+8*i:], uint64(h))
	}
	return buf
}

// DecodeFrontier parses a frontier file. Handles run to end of file; a
// trailing partial handle is ignored.
func DecodeFrontier(data []byte) ([]handle.NodeHandle, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	if magic := binary.LittleEndian.Uint32(data); magic != FrontierMagic {
		return nil, fmt.Errorf("%w: %#08x", ErrBadMagic, magic)
	}
	body := data[4:]
	hs := make([]handle.NodeHandle, 0, len(body)/8)
	for len(body) >= 8 {
		hs = append(hs, handle.NodeHandle(binary.LittleEndian.Uint64(body)))
		body = body[8:]
	}
	return hs, nil
}

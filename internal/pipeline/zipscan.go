package pipeline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

const (
	localHeaderSig   = 0x04034b50
	centralHeaderSig = 0x02014b50
	endOfCentralSig  = 0x06054b50
	descriptorSig    = 0x08074b50

	localHeaderLen = 30
	flagDescriptor = 0x8
)

var errTruncatedArchive = errors.New("archive truncated")

// walkLocalEntries reads an archive front to back by its local file headers,
// for archives whose central directory is missing or damaged. fn sees every
// entry whose extent could be determined; entryErr is set when its content
// cannot be trusted. The walk stops with an error at the first entry whose
// end cannot be found, after fn saw everything before it.
func walkLocalEntries(data []byte, fn func(name string, content []byte, entryErr error)) error {
	pos := 0
	for {
		if pos+4 > len(data) {
			if pos == 0 {
				return zip.ErrFormat
			}
			return errTruncatedArchive
		}
		switch binary.LittleEndian.Uint32(data[pos:]) {
		case localHeaderSig:
		case centralHeaderSig, endOfCentralSig:
			return nil
		default:
			if pos == 0 {
				return zip.ErrFormat
			}
			return fmt.Errorf("unexpected signature at offset %d: %w", pos, zip.ErrFormat)
		}
		if pos+localHeaderLen > len(data) {
			return errTruncatedArchive
		}

		h := data[pos : pos+localHeaderLen]
		flags := binary.LittleEndian.Uint16(h[6:])
		method := binary.LittleEndian.Uint16(h[8:])
		crc := binary.LittleEndian.Uint32(h[14:])
		csize := int(binary.LittleEndian.Uint32(h[18:]))
		nameLen := int(binary.LittleEndian.Uint16(h[26:]))
		extraLen := int(binary.LittleEndian.Uint16(h[28:]))

		start := pos + localHeaderLen + nameLen + extraLen
		if start > len(data) {
			return errTruncatedArchive
		}
		name := string(data[pos+localHeaderLen : pos+localHeaderLen+nameLen])

		var (
			content  []byte
			entryErr error
			end      int
		)
		if flags&flagDescriptor != 0 {
			// sizes follow the data; only a self-terminating stream can be walked
			if method != zip.Deflate {
				return fmt.Errorf("entry %q has no size: %w", name, zip.ErrFormat)
			}
			r := bytes.NewReader(data[start:])
			var err error
			content, err = io.ReadAll(flate.NewReader(r))
			if err != nil {
				return fmt.Errorf("entry %q: %w", name, errTruncatedArchive)
			}
			end = len(data) - r.Len()

			if end+4 <= len(data) && binary.LittleEndian.Uint32(data[end:]) == descriptorSig {
				end += 4
			}
			if end+12 > len(data) {
				return fmt.Errorf("entry %q: %w", name, errTruncatedArchive)
			}
			crc = binary.LittleEndian.Uint32(data[end:])
			end += 12
		} else {
			end = start + csize
			if end > len(data) {
				return fmt.Errorf("entry %q: %w", name, errTruncatedArchive)
			}
			raw := data[start:end]
			switch method {
			case zip.Store:
				content = raw
			case zip.Deflate:
				content, entryErr = io.ReadAll(flate.NewReader(bytes.NewReader(raw)))
			default:
				entryErr = zip.ErrAlgorithm
			}
		}

		if entryErr == nil && crc32.ChecksumIEEE(content) != crc {
			entryErr = zip.ErrChecksum
		}
		fn(name, content, entryErr)
		pos = end
	}
}

package recorder

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/snappy"

	"ballancemmo/relay/internal/protocol"
)

// ErrBadMagic marks a file that is not a flight recording.
var ErrBadMagic = errors.New("recorder: bad magic")

// Header is the decoded recording preamble.
type Header struct {
	FormatVersion  byte
	ServerVersion  protocol.Version
	Compressed     bool
	StartTime      time.Time
	StartTimestamp int64
}

// Record is one replayed inbound frame.
type Record struct {
	Timestamp int64
	Frame     []byte
}

const headerSize = 8 + 1 + 5 + 1 + 8 + 8

// ReadFile loads an entire recording: header plus every record in order.
func ReadFile(path string) (Header, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return readAll(f)
}

// ReadStream decodes a recording from an arbitrary reader, so callers can
// layer archive decompression underneath.
func ReadStream(r io.Reader) (Header, []Record, error) {
	return readAll(r)
}

func readAll(r io.Reader) (Header, []Record, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, nil, fmt.Errorf("recorder: read header: %w", err)
	}
	if !bytes.Equal(raw[:8], Magic[:]) {
		return Header{}, nil, ErrBadMagic
	}
	header := Header{
		FormatVersion: raw[8],
		ServerVersion: protocol.Version{
			Major: raw[9],
			Minor: raw[10],
			Patch: raw[11],
			Stage: protocol.Stage(raw[12]),
			Build: raw[13],
		},
		Compressed:     raw[14] == 1,
		StartTime:      time.Unix(int64(binary.LittleEndian.Uint64(raw[15:23])), 0).UTC(),
		StartTimestamp: int64(binary.LittleEndian.Uint64(raw[23:31])),
	}

	var stream io.Reader = bufio.NewReader(r)
	if header.Compressed {
		stream = snappy.NewReader(stream)
	}

	var records []Record
	scratch := make([]byte, 12)
	for {
		if _, err := io.ReadFull(stream, scratch); err != nil {
			if errors.Is(err, io.EOF) {
				return header, records, nil
			}
			//1.- A torn tail record is expected after a crash; keep what parsed.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return header, records, nil
			}
			return header, records, err
		}
		length := binary.LittleEndian.Uint32(scratch[8:12])
		frame := make([]byte, length)
		if _, err := io.ReadFull(stream, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return header, records, nil
			}
			return header, records, err
		}
		records = append(records, Record{
			Timestamp: int64(binary.LittleEndian.Uint64(scratch[0:8])),
			Frame:     frame,
		})
	}
}

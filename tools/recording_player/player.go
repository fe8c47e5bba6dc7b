// Package recordingplayer loads one flight recording and decodes each
// captured frame back into its protocol message for inspection.
package recordingplayer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"ballancemmo/relay/internal/protocol"
	"ballancemmo/relay/internal/recorder"
)

// Frame is one decoded inbound frame from the recording.
type Frame struct {
	Timestamp int64            `json:"timestamp"`
	Opcode    string           `json:"opcode"`
	Size      int              `json:"size"`
	Message   protocol.Message `json:"message,omitempty"`
}

// Load reads a recording, live .bin or archived .bin.zst, and decodes every
// frame. Frames that fail protocol decoding are kept with an empty message so
// the timeline stays complete.
func Load(path string) (recorder.Header, []Frame, error) {
	if path == "" {
		return recorder.Header{}, nil, fmt.Errorf("path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return recorder.Header{}, nil, err
	}
	defer f.Close()

	//1.- Archived recordings carry a zstd layer above the recording format.
	var stream io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return recorder.Header{}, nil, err
		}
		defer dec.Close()
		stream = dec
	}

	header, records, err := recorder.ReadStream(stream)
	if err != nil {
		return recorder.Header{}, nil, err
	}

	frames := make([]Frame, 0, len(records))
	for _, rec := range records {
		frame := Frame{Timestamp: rec.Timestamp, Size: len(rec.Frame)}
		if msg, err := protocol.Decode(rec.Frame); err == nil {
			frame.Opcode = msg.Opcode().String()
			frame.Message = msg
		} else {
			frame.Opcode = "malformed"
		}
		frames = append(frames, frame)
	}
	return header, frames, nil
}

// Package recorder persists a timestamped log of every inbound wire message
// to a binary file for later replay and audit. Appends go through a queue
// serviced by a dedicated writer goroutine so a slow disk never blocks the
// serving path.
package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"

	"ballancemmo/relay/internal/protocol"
)

// Magic identifies a flight recording file.
var Magic = [8]byte{'B', 'M', 'M', 'O', 'F', 'L', 'T', 0}

// FormatVersion is bumped whenever the record layout changes.
const FormatVersion byte = 1

// ErrClosed is returned by Record after Close has drained the queue.
var ErrClosed = errors.New("recorder: closed")

// queueDepth bounds in-flight records; beyond this Record drops and counts.
const queueDepth = 4096

type record struct {
	timestamp int64
	frame     []byte
}

// Options configure a recorder.
type Options struct {
	// Dir is the directory recordings are created in.
	Dir string
	// Snappy wraps the record stream in snappy framing.
	Snappy bool
	// Clock overrides the time source; nil means time.Now.
	Clock func() time.Time
}

// Recorder owns one recording file and its writer goroutine.
type Recorder struct {
	mu      sync.Mutex
	queue   chan record
	done    chan struct{}
	closed  bool
	dropped int64

	path string
	file *os.File
	out  io.Writer
	buf  *bufio.Writer
	sn   *snappy.Writer
}

// New opens a fresh recording file named after the start time and launches
// the writer goroutine. startTimestamp is the logical message clock at start.
func New(opts Options, startTimestamp int64) (*Recorder, error) {
	if opts.Dir == "" {
		return nil, errors.New("recorder: directory must be provided")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create directory: %w", err)
	}
	start := now().UTC()
	name := fmt.Sprintf("flight-%s.bin", start.Format("20060102T150405Z"))
	path := filepath.Join(opts.Dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: create file: %w", err)
	}

	r := &Recorder{
		queue: make(chan record, queueDepth),
		done:  make(chan struct{}),
		path:  path,
		file:  file,
	}
	r.buf = bufio.NewWriter(file)
	if opts.Snappy {
		//1.- Snappy framing sits between the buffer and the record stream so
		// headers stay readable without decompression tooling knowing the codec.
		r.sn = snappy.NewBufferedWriter(r.buf)
		r.out = r.sn
	} else {
		r.out = r.buf
	}

	if err := r.writeHeader(start, startTimestamp, opts.Snappy); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	go r.run()
	return r, nil
}

// Path reports the recording file location.
func (r *Recorder) Path() string { return r.path }

// Dropped reports how many records were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) writeHeader(start time.Time, startTimestamp int64, compressed bool) error {
	header := make([]byte, 0, 32)
	header = append(header, Magic[:]...)
	header = append(header, FormatVersion)
	v := protocol.CurrentVersion
	header = append(header, v.Major, v.Minor, v.Patch, byte(v.Stage), v.Build)
	flags := byte(0)
	if compressed {
		flags = 1
	}
	header = append(header, flags)
	header = binary.LittleEndian.AppendUint64(header, uint64(start.Unix()))
	header = binary.LittleEndian.AppendUint64(header, uint64(startTimestamp))
	//1.- The header bypasses the compressed stream so readers can sniff it raw.
	if _, err := r.file.Write(header); err != nil {
		return fmt.Errorf("recorder: write header: %w", err)
	}
	return nil
}

// Record queues one inbound frame for appending. The frame is copied, so the
// caller may reuse its buffer. Returns ErrClosed after Close.
func (r *Recorder) Record(timestamp int64, frame []byte) error {
	if r == nil || len(frame) == 0 {
		return nil
	}
	clone := append([]byte(nil), frame...)
	//1.- The send happens under the mutex so Close cannot shut the queue
	// between the closed check and the enqueue.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	select {
	case r.queue <- record{timestamp: timestamp, frame: clone}:
	default:
		//2.- Dropping beats blocking the serving path when the disk stalls.
		r.dropped++
	}
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	scratch := make([]byte, 12)
	for rec := range r.queue {
		binary.LittleEndian.PutUint64(scratch[0:8], uint64(rec.timestamp))
		binary.LittleEndian.PutUint32(scratch[8:12], uint32(len(rec.frame)))
		if _, err := r.out.Write(scratch); err != nil {
			continue
		}
		_, _ = r.out.Write(rec.frame)
	}
}

// Close stops accepting records, synchronously drains the queue, flushes and
// closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.queue)
	<-r.done

	var errs []error
	if r.sn != nil {
		if err := r.sn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.buf.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

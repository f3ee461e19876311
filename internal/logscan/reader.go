// Package logscan reads log lines newest-first without loading whole
// files into memory.
package logscan

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"strings"
)

const (
	// DefaultMaxLines bounds the worst-case scan cost on pathological inputs.
	DefaultMaxLines = 300000
	// DefaultBlockSize is the read granularity for seekable files.
	DefaultBlockSize = 64 * 1024
)

// Options controls a backward scan.
type Options struct {
	// MaxLines caps the number of lines yielded. Defaults to DefaultMaxLines.
	MaxLines int
	// BlockSize is the backward read block size. Defaults to DefaultBlockSize.
	BlockSize int
	// Stop is evaluated on every yielded line; once it returns true the
	// triggering line is still yielded but no further lines follow.
	Stop func(line string) bool
}

// Scanner yields the lines of one file in reverse order. It is forward-only
// and non-restartable, in the manner of bufio.Scanner:
//
//	s, err := logscan.Open(path, opts)
//	for s.Next() {
//	    use(s.Line())
//	}
//	err = s.Err()
//
// Plain files are read in fixed-size blocks from the end, carrying the
// partial first line of each block into the next (earlier) read. Gzip files
// cannot be seeked from the end: they are decompressed once, front to back,
// through a ring of MaxLines lines and yielded in reverse. That keeps memory
// bounded but not read I/O, and is acceptable only because rotated logs are
// compressed after they stop growing.
type Scanner struct {
	file      *os.File
	pos       int64
	carry     []byte
	queue     []string
	line      string
	count     int
	maxLines  int
	blockSize int
	stop      func(string) bool
	stopped   bool
	done      bool
	firstFill bool
	err       error
}

// Open prepares a backward scan of path.
func Open(path string, opts Options) (*Scanner, error) {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}

	s := &Scanner{
		maxLines:  opts.MaxLines,
		blockSize: opts.BlockSize,
		stop:      opts.Stop,
		firstFill: true,
	}

	if strings.HasSuffix(path, ".gz") {
		if err := s.slurpGzip(path); err != nil {
			return nil, err
		}
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	s.file = f
	s.pos = info.Size()
	return s, nil
}

// Next advances to the next (earlier) line.
func (s *Scanner) Next() bool {
	if s.err != nil || s.stopped || s.count >= s.maxLines {
		return false
	}

	for len(s.queue) == 0 {
		if s.done {
			return false
		}
		if s.file == nil {
			s.done = true
			return false
		}
		if err := s.fillFromEarlierBlock(); err != nil {
			s.err = err
			return false
		}
	}

	s.line = s.queue[0]
	s.queue = s.queue[1:]
	s.count++
	if s.stop != nil && s.stop(s.line) {
		s.stopped = true
	}
	return true
}

// Line returns the line yielded by the last successful Next.
func (s *Scanner) Line() string {
	return s.line
}

// LinesRead returns the number of lines yielded so far.
func (s *Scanner) LinesRead() int {
	return s.count
}

// Stopped reports whether the stop predicate ended the scan.
func (s *Scanner) Stopped() bool {
	return s.stopped
}

// Err returns the first I/O error encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases the underlying file.
func (s *Scanner) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// fillFromEarlierBlock reads the next block towards the file start and
// splits it into complete lines, newest-first. A partial line at the block
// head is carried over until the block that completes it is read.
func (s *Scanner) fillFromEarlierBlock() error {
	if s.pos <= 0 {
		// Whatever is carried is the first line of the file.
		if len(s.carry) > 0 {
			s.queue = append(s.queue, trimLine(s.carry))
			s.carry = nil
		}
		s.done = true
		return nil
	}

	readSize := int64(s.blockSize)
	if readSize > s.pos {
		readSize = s.pos
	}
	s.pos -= readSize

	block := make([]byte, readSize)
	if _, err := s.file.ReadAt(block, s.pos); err != nil {
		return fmt.Errorf("read block at %d: %w", s.pos, err)
	}

	combined := append(block, s.carry...)
	parts := bytes.Split(combined, []byte{'\n'})

	// A trailing newline at the end of the file leaves one empty artifact
	// after the final line. Later blocks end mid-line by construction, so
	// the strip applies only to the first block read.
	if s.firstFill {
		s.firstFill = false
		if len(parts) > 1 && len(parts[len(parts)-1]) == 0 && combined[len(combined)-1] == '\n' {
			parts = parts[:len(parts)-1]
		}
	}

	if s.pos > 0 {
		s.carry = parts[0]
		parts = parts[1:]
	} else {
		s.carry = nil
	}

	for i := len(parts) - 1; i >= 0; i-- {
		s.queue = append(s.queue, trimLine(parts[i]))
	}
	return nil
}

func (s *Scanner) slurpGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer zr.Close()

	// Bounded ring of the most recent MaxLines lines.
	ring := make([]string, 0, s.maxLines)
	next := 0
	wrapped := false

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(ring) < s.maxLines {
			ring = append(ring, sc.Text())
			continue
		}
		ring[next] = sc.Text()
		next = (next + 1) % s.maxLines
		wrapped = true
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan gzip %s: %w", path, err)
	}

	ordered := ring
	if wrapped {
		ordered = append(append([]string(nil), ring[next:]...), ring[:next]...)
	}
	s.queue = make([]string, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		s.queue = append(s.queue, ordered[i])
	}
	s.done = true
	return nil
}

func trimLine(b []byte) string {
	return strings.TrimSuffix(string(b), "\r")
}

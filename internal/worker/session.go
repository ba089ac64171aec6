package worker

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"changkun.de/codextasks/internal/taskstore"
)

const stderrPrefix = "[stderr] "

// activeSession is established once the assistant subprocess announces a
// thread id on stdout; before that moment the worker has no task directory
// to write to and buffers any output it has seen so far.
type activeSession struct {
	threadID     string
	paths        taskstore.Paths
	logFile      *os.File
	log          *bufio.Writer
	promptReader *promptReader
}

func (s *activeSession) writeStdout(line string) error {
	if _, err := s.log.WriteString(line); err != nil {
		return err
	}
	return s.log.WriteByte('\n')
}

func (s *activeSession) writeStderr(line string) error {
	if _, err := s.log.WriteString(stderrPrefix); err != nil {
		return err
	}
	if _, err := s.log.WriteString(line); err != nil {
		return err
	}
	return s.log.WriteByte('\n')
}

func (s *activeSession) flush() error {
	if err := s.log.Flush(); err != nil {
		return err
	}
	return s.logFile.Sync()
}

// preparePromptReader creates the prompt FIFO if it hasn't been already
// (the initial invocation creates it as part of the handshake; a later
// call is a no-op).
func (s *activeSession) preparePromptReader() error {
	if s.promptReader != nil {
		return nil
	}
	if err := createPipe(s.paths.PipePath()); err != nil {
		return fmt.Errorf("create prompt pipe for %s: %w", s.threadID, err)
	}
	reader, err := newPromptReader(s.paths.PipePath())
	if err != nil {
		return fmt.Errorf("initialize prompt reader for %s: %w", s.threadID, err)
	}
	s.promptReader = reader
	return nil
}

// nextPrompt blocks until a line is available on the FIFO, or returns
// ok=false if no reader has been established (the worker is shutting down).
func (s *activeSession) nextPrompt() (prompt string, ok bool, err error) {
	if s.promptReader == nil {
		return "", false, nil
	}
	return s.promptReader.nextPrompt()
}

// createPipe creates a FIFO at path, tolerating one that already exists.
func createPipe(path string) error {
	err := unix.Mkfifo(path, syscall.S_IRUSR|syscall.S_IWUSR)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}

// promptReader reads newline-delimited prompts from a FIFO, reopening it
// whenever the write side closes and EOF is observed. It holds its own
// read+write handle open so EOF never becomes permanent: a FIFO opened
// read-only reports EOF forever once every writer has closed, whereas one
// opened read-write keeps its own writer reference alive for the lifetime
// of this reader.
type promptReader struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
}

func newPromptReader(path string) (*promptReader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open prompt pipe at %s: %w", path, err)
	}
	return &promptReader{
		path:    path,
		file:    f,
		scanner: bufio.NewScanner(f),
	}, nil
}

func (r *promptReader) reopen() error {
	r.file.Close()
	f, err := os.OpenFile(r.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("reopen prompt pipe at %s: %w", r.path, err)
	}
	r.file = f
	r.scanner = bufio.NewScanner(f)
	return nil
}

func (r *promptReader) nextPrompt() (string, bool, error) {
	for {
		if r.scanner.Scan() {
			return r.scanner.Text(), true, nil
		}
		err := r.scanner.Err()
		if err == nil {
			// EOF: every writer closed. Reopen and keep waiting.
			if rerr := r.reopen(); rerr != nil {
				return "", false, rerr
			}
			continue
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if errors.Is(err, syscall.EPIPE) {
			if rerr := r.reopen(); rerr != nil {
				return "", false, rerr
			}
			continue
		}
		return "", false, fmt.Errorf("read prompt from %s: %w", r.path, err)
	}
}

func (r *promptReader) close() error {
	return r.file.Close()
}

//go:build unix

// Package keyboard reads single keystrokes from a terminal with a bounded wait.
//
// The terminal is switched to raw mode only while a Poll is in progress and
// restored before Poll returns, so between polls the terminal behaves
// normally and Ctrl+C is delivered as SIGINT.
package keyboard

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/gwillem/keyteleop/pkg/teleop"
)

var (
	// ErrNotTerminal is returned by Open when the file is not a terminal.
	ErrNotTerminal = errors.New("not a terminal")
	// ErrClosed is returned by Poll after Close.
	ErrClosed = errors.New("key source closed")
)

var _ teleop.KeySource = (*Source)(nil)

// Source is a teleop.KeySource backed by a file descriptor.
type Source struct {
	f   *os.File
	fd  int
	raw bool

	// orig is the terminal state at Open, restored by Close.
	orig *term.State

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error

	buf [1]byte
}

// Open prepares f, normally os.Stdin, for raw single-key polling. It fails
// if f is not a terminal or refuses raw mode.
func Open(f *os.File) (*Source, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s: %w", f.Name(), ErrNotTerminal)
	}

	orig, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("read terminal state: %w", err)
	}

	s := &Source{f: f, fd: fd, raw: true, orig: orig}
	// Enter and leave raw mode once so a broken device fails here and not
	// on the first tick.
	if err := s.withRaw(func() error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// NewReader polls f without touching terminal modes. Use it for pipes.
func NewReader(f *os.File) *Source {
	return &Source{f: f, fd: int(f.Fd())}
}

// Poll waits up to timeout for one byte.
func (s *Source) Poll(timeout time.Duration) (teleop.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return teleop.NoKey, ErrClosed
	}

	if !s.raw {
		return s.read(timeout)
	}

	key := teleop.NoKey
	err := s.withRaw(func() error {
		var err error
		key, err = s.read(timeout)
		return err
	})
	return key, err
}

// withRaw runs fn with the terminal in raw mode and always restores the
// previous mode.
func (s *Source) withRaw(fn func() error) (err error) {
	prev, err := term.MakeRaw(s.fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() {
		if rerr := term.Restore(s.fd, prev); rerr != nil && err == nil {
			err = fmt.Errorf("restore terminal: %w", rerr)
		}
	}()
	return fn()
}

func (s *Source) read(timeout time.Duration) (teleop.Key, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return teleop.NoKey, nil
	}
	if err != nil {
		return teleop.NoKey, fmt.Errorf("poll input: %w", err)
	}
	if n == 0 {
		return teleop.NoKey, nil
	}

	nr, err := s.f.Read(s.buf[:])
	if nr == 1 {
		return teleop.Key(s.buf[0]), nil
	}
	if err != nil {
		return teleop.NoKey, fmt.Errorf("read input: %w", err)
	}
	return teleop.NoKey, nil
}

// Close restores the terminal state captured by Open. It is safe to call
// more than once and from a deferred cleanup that races the controller's
// own stop; only the first call restores.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		if s.raw && s.orig != nil {
			if err := term.Restore(s.fd, s.orig); err != nil {
				s.closeErr = fmt.Errorf("restore terminal: %w", err)
			}
		}
	})
	return s.closeErr
}

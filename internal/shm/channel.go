//go:build darwin || linux

// Package shm is the legacy shared-memory frame transport: a named, mapped
// segment holding a framebuffer.Ring, plus a named FIFO used as the
// cross-process "data available" signal.
//
// Both names are fixed strings so independent processes find each other
// without coordination. The process that creates the segment removes both
// names on Close.
package shm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/framebuffer"
)

// Default resource names.
const (
	DefaultName       = "com.sceneit.virtualcamera.sharedmem"
	DefaultSignalName = "com.sceneit.virtualcamera.semaphore"
)

// Options configures a SharedChannel.
type Options struct {
	// Dir holds the segment and signal files. Defaults to /dev/shm when it
	// exists, otherwise os.TempDir().
	Dir string
	// SignalName names the FIFO. Defaults to DefaultSignalName.
	SignalName string
	// Layout is the ring geometry. Zero values use framebuffer.DefaultLayout.
	Layout framebuffer.Layout
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = DefaultDir()
	}
	if o.SignalName == "" {
		o.SignalName = DefaultSignalName
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// DefaultDir returns the directory used for shared segments.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Channel is an open shared segment and its signal.
type Channel struct {
	name       string
	path       string
	signalPath string
	created    bool

	fd       int
	signalFd int
	mem      []byte
	ring     *framebuffer.Ring

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// Open creates the named segment, or attaches to it when another process
// already created it.
func Open(name string, opts Options) (*Channel, error) {
	opts = opts.withDefaults()
	if name == "" {
		name = DefaultName
	}

	c := &Channel{
		name:       name,
		path:       filepath.Join(opts.Dir, name),
		signalPath: filepath.Join(opts.Dir, opts.SignalName),
		fd:         -1,
		signalFd:   -1,
		logger:     opts.Logger.With("component", "shm", "name", name),
	}

	size := opts.Layout.Size()
	if err := c.openSegment(size); err != nil {
		return nil, err
	}

	mem, err := unix.Mmap(c.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		c.release()
		return nil, newError(CodeMapFailed, name, "mmap", err)
	}
	c.mem = mem

	ring, err := framebuffer.Attach(mem, opts.Layout)
	if err != nil {
		c.release()
		return nil, newError(CodeMapFailed, name, "attach ring", err)
	}
	if c.created {
		ring.Reset()
	}
	c.ring = ring

	if err := c.openSignal(); err != nil {
		c.release()
		return nil, newError(CodeAllocationFailed, name, "signal", err)
	}

	c.logger.Info("Shared channel open", "path", c.path, "created", c.created, "bytes", size)
	return c, nil
}

// openSegment creates the backing file exclusively, or attaches to an
// existing one of the expected size.
func (c *Channel) openSegment(size int) error {
	fd, err := unix.Open(c.path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o600)
	switch {
	case err == nil:
		c.created = true
		c.fd = fd
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			c.release()
			return newError(CodeAllocationFailed, c.name, "size segment", err)
		}
		return nil
	case errors.Is(err, unix.EEXIST):
		fd, err = unix.Open(c.path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return newError(CodeAllocationFailed, c.name, "attach segment", err)
		}
		c.fd = fd
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			c.release()
			return newError(CodeAllocationFailed, c.name, "stat segment", err)
		}
		if st.Size != int64(size) {
			c.release()
			return newError(CodeAllocationFailed, c.name,
				fmt.Sprintf("segment is %d bytes, layout needs %d", st.Size, size), nil)
		}
		return nil
	default:
		return newError(CodeAllocationFailed, c.name, "create segment", err)
	}
}

// openSignal creates the FIFO if needed and opens it read-write and
// non-blocking, so neither side waits for a peer to open it.
func (c *Channel) openSignal() error {
	if err := unix.Mkfifo(c.signalPath, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	fd, err := unix.Open(c.signalPath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	c.signalFd = fd
	return nil
}

// Name returns the segment name.
func (c *Channel) Name() string {
	return c.name
}

// Created reports whether this process created the segment.
func (c *Channel) Created() bool {
	return c.created
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Ring exposes the ring for stats and inspection.
func (c *Channel) Ring() *framebuffer.Ring {
	return c.ring
}

// Write copies f into the ring and signals the consumer. It fails with a
// ChannelError when the channel is closed or the segment name was removed,
// and with the ring's error when the frame is refused.
func (c *Channel) Write(f frame.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return newError(CodeClosed, c.name, "write on closed channel", nil)
	}
	if err := c.checkLinked(); err != nil {
		return err
	}
	if err := c.ring.Write(f); err != nil {
		return err
	}
	c.signal()
	return nil
}

// TryRead returns the oldest frame, if any.
func (c *Channel) TryRead() (frame.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return frame.Frame{}, false
	}
	return c.ring.TryRead()
}

// checkLinked detects a segment unlinked by its peer: the mapping stays
// valid but no new process can reach it, so the link is treated as gone.
func (c *Channel) checkLinked() error {
	var st unix.Stat_t
	if err := unix.Fstat(c.fd, &st); err != nil {
		return newError(CodeConsumerGone, c.name, "stat segment", err)
	}
	if st.Nlink == 0 {
		return newError(CodeConsumerGone, c.name, "segment unlinked", nil)
	}
	return nil
}

// SignalDataAvailable wakes a consumer blocked in WaitForData.
func (c *Channel) SignalDataAvailable() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		c.signal()
	}
}

func (c *Channel) signal() {
	// A full pipe already holds a pending wakeup.
	_, _ = unix.Write(c.signalFd, []byte{1})
}

// WaitForData blocks until the producer signals, a frame is already waiting,
// or timeout elapses. It reports whether data may be available. Only a
// dedicated consumer goroutine calls it.
func (c *Channel) WaitForData(timeout time.Duration) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	if c.ring.Len() > 0 {
		c.mu.RUnlock()
		c.drainSignal()
		return true
	}
	fd := c.signalFd
	c.mu.RUnlock()

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline).Milliseconds())
		if ms < 0 {
			ms = 0
		}
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n == 0 {
			return false
		}
		c.drainSignal()
		return true
	}
}

func (c *Channel) drainSignal() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(c.signalFd, buf)
		if err != nil || n < len(buf) {
			return
		}
	}
}

// Close unmaps the segment and, when this process created it, removes the
// segment and signal names.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.release()
	c.logger.Info("Shared channel closed", "unlinked", c.created)
	return err
}

// release frees every OS resource held (must hold lock or be unpublished).
func (c *Channel) release() error {
	var errs []error
	if c.mem != nil {
		if err := unix.Munmap(c.mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		c.mem = nil
	}
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	if c.signalFd >= 0 {
		_ = unix.Close(c.signalFd)
		c.signalFd = -1
	}
	if c.created {
		if err := unix.Unlink(c.path); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("unlink segment: %w", err))
		}
		if err := unix.Unlink(c.signalPath); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("unlink signal: %w", err))
		}
	}
	return errors.Join(errs...)
}

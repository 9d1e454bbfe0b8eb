package ipc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"example.com/sharecore/pkg/command"
)

var (
	// ErrNotConnected is returned when no host UI client is connected
	ErrNotConnected = errors.New("ipc: no client connected")
	// ErrQueueFull is returned when the client is not draining its messages
	ErrQueueFull = errors.New("ipc: outbound queue full")
)

const defaultQueueSize = 1024

// Submitter receives decoded commands
type Submitter interface {
	Submit(cmd command.Command)
}

// Sender delivers outbound notifications. TrySend reports whether msg was
// queued for a connected client.
type Sender interface {
	TrySend(msg Message) bool
}

// Server accepts one host UI client at a time on a local socket
type Server struct {
	path      string
	submit    Submitter
	queueSize int

	listener net.Listener
	shutdown atomic.Bool
	wg       sync.WaitGroup

	mu     sync.Mutex
	client *clientConn
}

type clientConn struct {
	conn   net.Conn
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *clientConn) close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// NewServer creates a server bound to path once Listen is called
func NewServer(path string, submit Submitter) *Server {
	return &Server{
		path:      path,
		submit:    submit,
		queueSize: defaultQueueSize,
	}
}

// Listen binds the endpoint. On POSIX systems path is a unix socket and any
// stale socket file is removed first. Elsewhere the server listens on a
// loopback TCP port and writes the address to path.
func (s *Server) Listen() error {
	if runtime.GOOS == "windows" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen on loopback: %w", err)
		}
		if err := os.WriteFile(s.path, []byte(ln.Addr().String()), 0o600); err != nil {
			ln.Close()
			return fmt.Errorf("write endpoint file %s: %w", s.path, err)
		}
		s.listener = ln
		slog.Info("ipc: listening", "addr", ln.Addr().String(), "endpoint", s.path)
		return nil
	}

	if err := removeStale(s.path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	s.listener = ln
	slog.Info("ipc: listening", "socket", s.path)
	return nil
}

func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("refusing to remove %s: not a socket", path)
	}
	slog.Info("ipc: removing stale socket", "socket", path)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts clients until Shutdown is called
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("ipc: Serve called before Listen")
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			slog.Warn("ipc: accept failed", "error", err)
			continue
		}

		c := &clientConn{
			conn:   conn,
			out:    make(chan []byte, s.queueSize),
			closed: make(chan struct{}),
		}
		if !s.attach(c) {
			slog.Warn("ipc: refusing second client")
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveClient(ctx, c)
		}()
	}
}

func (s *Server) attach(c *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil || s.shutdown.Load() {
		return false
	}
	s.client = c
	return true
}

func (s *Server) detach(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == c {
		s.client = nil
	}
}

func (s *Server) serveClient(ctx context.Context, c *clientConn) {
	slog.Info("ipc: client connected")
	s.submit.Submit(command.SocketConnected{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer c.close()
		return s.readLoop(c)
	})
	g.Go(func() error {
		defer c.close()
		return s.writeLoop(gctx, c)
	})
	err := g.Wait()

	s.detach(c)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !s.shutdown.Load() {
		slog.Warn("ipc: client connection failed", "error", err)
	}
	slog.Info("ipc: client disconnected")
	s.submit.Submit(command.SocketDisconnected{})
}

func (s *Server) readLoop(c *clientConn) error {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			s.handleLine(line)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) handleLine(line []byte) {
	cmd, err := Decode(bytes.TrimSpace(line))
	if err != nil {
		slog.Warn("ipc: dropping message", "error", err)
		return
	}
	slog.Debug("ipc: received", "command", fmt.Sprintf("%T", cmd))
	s.submit.Submit(cmd)
}

func (s *Server) writeLoop(ctx context.Context, c *clientConn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case data := <-c.out:
			if _, err := c.conn.Write(data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// TrySend queues msg for the connected client and reports whether it was
// queued. Messages are dropped when no client is connected or its queue is full.
func (s *Server) TrySend(msg Message) bool {
	err := s.Send(msg)
	if err != nil {
		slog.Debug("ipc: dropping message", "type", msg.MessageType(), "error", err)
	}
	return err == nil
}

// Send queues msg for the connected client without blocking
func (s *Server) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Connected reports whether a client is attached
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Shutdown stops accepting, disconnects the client and removes the endpoint file
func (s *Server) Shutdown() error {
	if s.shutdown.Swap(true) {
		return nil
	}

	var errs []error
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
	}

	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c != nil {
		c.close()
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove %s: %w", s.path, err))
	}
	slog.Info("ipc: shut down", "endpoint", s.path)
	return errors.Join(errs...)
}

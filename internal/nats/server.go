package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// DefaultPort keeps clear of a system NATS on 4222.
const DefaultPort = 4223

// MaxPayload fits one uncompressed 1080p BGRA frame plus the request header.
const MaxPayload = 16 * 1024 * 1024

// ServerOptions configures the embedded NATS server the extension owns.
type ServerOptions struct {
	Port int
	Host string
	Name string

	// ReadyTimeout bounds Start. Defaults to 5s.
	ReadyTimeout time.Duration
	// Debug forwards the server's debug output at slog debug level.
	Debug bool

	Logger *slog.Logger
}

// Server is the embedded NATS server carrying frames from host to extension.
type Server struct {
	opts   ServerOptions
	logger *slog.Logger
	ns     *server.Server
}

// NewServer returns a stopped server for opts.
func NewServer(opts ServerOptions) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Name == "" {
		opts.Name = "vcam"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{opts: opts, logger: opts.Logger.With("component", "nats-server")}
}

// Start listens and returns once clients can connect. A listen failure such
// as a busy port is returned without waiting for ReadyTimeout.
func (s *Server) Start() error {
	ns, err := server.NewServer(&server.Options{
		Host:           s.opts.Host,
		Port:           s.opts.Port,
		ServerName:     s.opts.Name,
		NoSigs:         true,
		MaxControlLine: 4096,
		MaxPayload:     MaxPayload,
		MaxPending:     4 * MaxPayload,
	})
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	logs := newServerLog(s.logger)
	ns.SetLogger(logs, s.opts.Debug, false)
	go ns.Start()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ReadyTimeout)
	defer cancel()
	if err := waitListening(ctx, ns, logs.fatal); err != nil {
		ns.Shutdown()
		return fmt.Errorf("NATS server on %s:%d: %w", s.opts.Host, s.opts.Port, err)
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", s.ClientURL())
	return nil
}

func waitListening(ctx context.Context, ns *server.Server, fatal <-chan string) error {
	for {
		if ns.ReadyForConnections(50 * time.Millisecond) {
			return nil
		}
		select {
		case msg := <-fatal:
			return errors.New(msg)
		case <-ctx.Done():
			return fmt.Errorf("not ready: %w", ctx.Err())
		default:
		}
	}
}

// Stop shuts the server down, dropping every client link.
func (s *Server) Stop() {
	if s.ns == nil {
		return
	}
	s.logger.Info("Stopping NATS server", "clients", s.ns.NumClients())
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.ns = nil
}

// ClientURL returns the URL clients should use to connect.
func (s *Server) ClientURL() string {
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}

// NumClients returns the number of connected clients.
func (s *Server) NumClients() int {
	if s.ns == nil {
		return 0
	}
	return s.ns.NumClients()
}

// serverLog routes nats-server output through slog. Fatal messages are
// logged as errors and handed to Start instead of exiting.
type serverLog struct {
	logger *slog.Logger
	fatal  chan string
}

func newServerLog(logger *slog.Logger) *serverLog {
	return &serverLog{logger: logger, fatal: make(chan string, 1)}
}

func (l *serverLog) Noticef(format string, v ...any) {
	l.logger.Debug(formatServerLog(format, v))
}

func (l *serverLog) Warnf(format string, v ...any) {
	l.logger.Warn(formatServerLog(format, v))
}

func (l *serverLog) Errorf(format string, v ...any) {
	l.logger.Error(formatServerLog(format, v))
}

func (l *serverLog) Fatalf(format string, v ...any) {
	msg := formatServerLog(format, v)
	l.logger.Error(msg)
	select {
	case l.fatal <- msg:
	default:
	}
}

func (l *serverLog) Debugf(format string, v ...any) {
	l.logger.Debug(formatServerLog(format, v))
}

func (l *serverLog) Tracef(format string, v ...any) {}

func formatServerLog(format string, v []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}

// Package server implements the NFS server functionality
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/example/ext4nfs/pkg/fs"
	"github.com/example/ext4nfs/pkg/nfs"
)

// maxCallSize bounds the size of one incoming RPC record. Calls are
// small for a read-only export, but WRITE payloads still arrive in full
// before they are rejected, so the bound stays above the advertised
// write size.
const maxCallSize = 2 << 20

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Config contains the NFS server configuration
type Config struct {
	// Network address to listen on (e.g. ":11111")
	ListenAddress string `yaml:"listen_address"`

	// Maximum concurrent TCP connections; zero means unlimited
	MaxConnections int `yaml:"max_connections"`

	// Maximum concurrent requests across all connections
	MaxConcurrent int `yaml:"max_concurrent"`

	// Maximum read size in bytes
	MaxReadSize int `yaml:"max_read_size"`

	// Request timeout in seconds
	RequestTimeout int `yaml:"request_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  ":11111",
		MaxConnections: 256,
		MaxConcurrent:  100,
		MaxReadSize:    1024 * 1024, // 1MB
		RequestTimeout: 30,          // 30 seconds
	}
}

// Server serves the NFSv3 and MOUNT programs over TCP with RPC record
// marking. All procedures run against a single read-only FileSystem.
type Server struct {
	// Configuration
	config *Config

	// The underlying filesystem implementation
	fileSystem fs.FileSystem

	// Filesystem identity packed into fattr3 replies
	fsid uint64

	// Cookie verifier returned by READDIR. The export is immutable, so
	// one value per server run is enough.
	cookieVerf [nfs.CookieVerfSize]byte

	// Worker pool for limiting concurrent requests
	workerPool chan struct{}

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	// Tracks connection handler goroutines for Shutdown
	wg sync.WaitGroup
}

// New creates a new NFS server over the given filesystem.
func New(config *Config, fileSystem fs.FileSystem) (*Server, error) {
	if fileSystem == nil {
		return nil, errors.New("no filesystem")
	}
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:     config,
		fileSystem: fileSystem,
		fsid:       uint64(fileSystem.Root().FileSystemID),
		workerPool: make(chan struct{}, config.MaxConcurrent),
		conns:      make(map[net.Conn]struct{}),
	}
	if _, err := rand.Read(s.cookieVerf[:]); err != nil {
		return nil, fmt.Errorf("failed to generate cookie verifier: %w", err)
	}
	return s, nil
}

// ListenAndServe listens on the configured address and serves until
// Shutdown or a listener failure.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis. It caps concurrent connections per
// the configuration and returns ErrServerClosed after Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	if s.config.MaxConnections > 0 {
		lis = netutil.LimitListener(lis, s.config.MaxConnections)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		lis.Close()
		return ErrServerClosed
	}
	s.listener = lis
	s.mu.Unlock()

	log.WithField("addr", lis.Addr().String()).Info("nfs server listening")

	for {
		conn, err := lis.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections, unblocks connection readers and
// waits for in-flight calls to finish. When the context expires first
// the remaining connections are closed hard.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	// A past read deadline pops blocked readers out of their loop while
	// in-flight replies still go out.
	for _, c := range conns {
		c.SetReadDeadline(time.Now())
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// serveConn owns one TCP connection until its client disconnects.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	c := &serverConn{
		server: s,
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
	}
	c.serve()
}

// serverConn carries the per-connection state: the write lock that
// keeps interleaved replies whole, and the in-flight call tracker.
type serverConn struct {
	server *Server
	conn   net.Conn
	addr   string

	writeMu sync.Mutex
	calls   sync.WaitGroup
}

func (c *serverConn) serve() {
	// Replies of calls still running must flush before the connection
	// closes behind us.
	defer c.calls.Wait()

	for {
		record, err := nfs.ReadRecord(c.conn, maxCallSize)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) && !isTimeout(err) {
				log.WithField("client", c.addr).Debugf("connection read failed: %v", err)
			}
			return
		}

		c.calls.Add(1)
		go func(rec []byte) {
			defer c.calls.Done()
			c.handleRecord(rec)
		}(record)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handleRecord decodes one RPC call and writes its reply.
func (c *serverConn) handleRecord(record []byte) {
	d := nfs.NewDecoder(record)
	call, err := nfs.DecodeCall(d)
	if err != nil {
		// Without a decoded xid there is no way to address a reply
		log.WithField("client", c.addr).Warnf("dropping undecodable call: %v", err)
		return
	}

	e := nfs.NewEncoder()
	switch {
	case call.RPCVersion != nfs.RPCVersion:
		nfs.EncodeRPCMismatchReply(e, call.XID)

	case call.Cred.Flavor != nfs.AuthNone && call.Cred.Flavor != nfs.AuthSys:
		nfs.EncodeAuthErrorReply(e, call.XID, nfs.AuthTooWeak)

	default:
		ctx := fs.WithCredentials(context.Background(), nfs.CredsFromAuth(call.Cred))
		if t := c.server.config.RequestTimeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
			defer cancel()
		}
		c.server.dispatch(ctx, e, call, d, c.addr)
	}

	c.send(e)
}

func (c *serverConn) send(e *nfs.Encoder) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := nfs.WriteRecord(c.conn, e.Bytes()); err != nil {
		log.WithField("client", c.addr).Debugf("reply write failed: %v", err)
	}
}

// dispatch routes a call to its program, rejecting unknown programs and
// unsupported versions.
func (s *Server) dispatch(ctx context.Context, e *nfs.Encoder, call *nfs.CallHeader, d *nfs.Decoder, clientAddr string) {
	switch call.Program {
	case nfs.ProgramNFS:
		if call.Version != nfs.VersionNFS {
			nfs.EncodeProgMismatchReply(e, call.XID, nfs.VersionNFS, nfs.VersionNFS)
			return
		}
		s.dispatchNFS(ctx, e, call, d, clientAddr)

	case nfs.ProgramMnt:
		if call.Version != nfs.VersionMnt {
			nfs.EncodeProgMismatchReply(e, call.XID, nfs.VersionMnt, nfs.VersionMnt)
			return
		}
		s.dispatchMount(ctx, e, call, d, clientAddr)

	default:
		nfs.EncodeAcceptedReply(e, call.XID, nfs.AcceptProgUnavail)
	}
}

// acquireWorker gets a worker from the pool or gives up with the context
func (s *Server) acquireWorker(ctx context.Context) error {
	select {
	case s.workerPool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWorker returns a worker to the pool
func (s *Server) releaseWorker() {
	<-s.workerPool
}

// processRequest handles common request processing logic: request and
// response logging, worker accounting and duration measurement. The
// closure returns the reply status plus the underlying error, if any,
// for the log.
func (s *Server) processRequest(ctx context.Context, op string, xid uint32, clientAddr string,
	process func() (nfs.Status, error)) nfs.Status {

	// Log request with the caller identity decoded from the credential
	creds, _ := fs.CallerCredentials(ctx)
	nfs.LogRequest(op, xid, clientAddr, creds)
	startTime := time.Now()

	// Acquire worker
	if err := s.acquireWorker(ctx); err != nil {
		nfs.LogError(op, xid, err)
		return nfs.StatusJukebox
	}
	defer s.releaseWorker()

	// Execute the operation
	status, err := process()

	// Log the result
	duration := time.Since(startTime)
	if err != nil {
		nfs.LogError(op, xid, err)
	}
	nfs.LogResponse(op, xid, status, duration)
	return status
}

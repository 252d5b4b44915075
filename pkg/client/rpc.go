package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/ext4nfs/pkg/nfs"
)

// maxReplySize bounds one reassembled reply record. READ replies
// dominate; the server never sends more than its advertised rtmax plus
// headers.
const maxReplySize = 2 << 20

// transport multiplexes concurrent RPC calls over one TCP connection
// with record marking. A single reader goroutine matches replies to
// waiting callers by xid, so calls may complete out of order.
type transport struct {
	conn net.Conn

	// writeMu keeps concurrently written call records whole
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]chan []byte
	nextXID uint32
	err     error
}

// dialTransport connects to addr and starts the reply reader.
func dialTransport(addr string, timeout time.Duration) (*transport, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	t := &transport{
		conn:    conn,
		pending: make(map[uint32]chan []byte),
		// Derived from the clock so xids differ across reconnects
		nextXID: uint32(time.Now().UnixNano()),
	}
	go t.readLoop()
	return t, nil
}

// readLoop delivers reply records to their callers until the
// connection dies, then fails every waiter.
func (t *transport) readLoop() {
	for {
		record, err := nfs.ReadRecord(t.conn, maxReplySize)
		if err != nil {
			t.fail(err)
			return
		}
		if len(record) < 4 {
			t.fail(fmt.Errorf("%w: reply record of %d bytes", nfs.ErrMalformed, len(record)))
			return
		}

		xid := uint32(record[0])<<24 | uint32(record[1])<<16 | uint32(record[2])<<8 | uint32(record[3])

		t.mu.Lock()
		ch, ok := t.pending[xid]
		if ok {
			delete(t.pending, xid)
		}
		t.mu.Unlock()

		if !ok {
			// A reply for a caller that gave up; per-call contexts
			// may expire before the server answers
			log.WithField("xid", fmt.Sprintf("0x%08x", xid)).Debug("discarding unmatched reply")
			continue
		}
		ch <- record
	}
}

// fail poisons the transport and wakes every pending caller.
func (t *transport) fail(err error) {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	for xid, ch := range t.pending {
		close(ch)
		delete(t.pending, xid)
	}
	t.mu.Unlock()
	t.conn.Close()
}

func (t *transport) close() error {
	t.fail(errors.New("transport closed"))
	return nil
}

// call sends one RPC call and blocks for its reply. The returned
// decoder is positioned at the start of the procedure results; a
// non-success reply surfaces as the error from nfs.DecodeReply.
func (t *transport) call(ctx context.Context, program, version, procedure uint32,
	cred nfs.OpaqueAuth, args func(*nfs.Encoder)) (*nfs.Decoder, error) {

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return nil, err
	}
	t.nextXID++
	xid := t.nextXID
	ch := make(chan []byte, 1)
	t.pending[xid] = ch
	t.mu.Unlock()

	e := nfs.NewEncoder()
	nfs.EncodeCall(e, xid, program, version, procedure, cred, nfs.OpaqueAuth{Flavor: nfs.AuthNone})
	if args != nil {
		args(e)
	}

	t.writeMu.Lock()
	err := nfs.WriteRecord(t.conn, e.Bytes())
	t.writeMu.Unlock()
	if err != nil {
		t.forget(xid)
		t.fail(err)
		return nil, err
	}

	select {
	case record, ok := <-ch:
		if !ok {
			t.mu.Lock()
			err := t.err
			t.mu.Unlock()
			return nil, err
		}
		d := nfs.NewDecoder(record)
		if _, err := nfs.DecodeReply(d); err != nil {
			return nil, err
		}
		return d, nil

	case <-ctx.Done():
		t.forget(xid)
		return nil, ctx.Err()
	}
}

func (t *transport) forget(xid uint32) {
	t.mu.Lock()
	delete(t.pending, xid)
	t.mu.Unlock()
}

// callWithRetry executes an RPC call with retry logic. Safe for every
// procedure here: the server is read-only, so redelivery cannot change
// state.
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err := fn(callCtx)
		cancel()

		if err == nil || !isRetryableError(err) {
			return err
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}

		// A dead connection is retryable after a reconnect
		c.dropTransport()

		delay := c.config.RetryDelay * time.Duration(float64(attempt+1)*c.config.BackoffFactor)
		log.WithFields(log.Fields{
			"op":      operation,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Debugf("retrying: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, c.config.MaxRetries+1, lastErr)
}

// isRetryableError checks if an error is worth another attempt.
func isRetryableError(err error) bool {
	// Context errors belong to the caller, not the wire
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// The server sheds load with JUKEBOX when its worker pool is full
	var nfsErr *NFSError
	if errors.As(err, &nfsErr) {
		return nfsErr.Status == nfs.StatusJukebox
	}

	// Connection failures: the next attempt reconnects
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}

	return false
}

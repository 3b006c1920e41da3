// Package tcp is a length-prefixed TCP transport.Endpoint adapter
// (connection-per-peer, identify-then-stream): each connection opens
// with an 8-byte big-endian player token, then exchanges 4-byte
// length-prefixed frames for the lifetime of the session.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/transport"
)

type conn struct {
	nc *net.TCPConn
	r  *bufio.Reader
}

func newConn(nc *net.TCPConn) *conn {
	return &conn{nc: nc, r: bufio.NewReader(nc)}
}

func (c *conn) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *conn) WriteFrame(payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.nc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

func (c *conn) Close() error { return c.nc.Close() }

// Listener accepts TCP connections on one address, handshakes each
// for its player token, and hands it to the Client Manager via the
// shared transport.Endpoint.
type Listener struct {
	ln       *net.TCPListener
	endpoint *transport.Endpoint
	broker   *reactor.Broker
	logger   log.Logger
}

// Listen binds addr and returns a Listener ready to Serve.
func Listen(addr string, endpoint *transport.Endpoint, broker *reactor.Broker, logger log.Logger) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Listener{ln: ln, endpoint: endpoint, broker: broker, logger: logger}, nil
}

// Serve accepts connections until ctx is cancelled or the listener
// errors.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()
	for {
		nc, err := l.ln.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go l.handle(ctx, nc)
	}
}

func (l *Listener) handle(ctx context.Context, nc *net.TCPConn) {
	c := newConn(nc)

	var tokenBuf [8]byte
	if _, err := io.ReadFull(c.r, tokenBuf[:]); err != nil {
		l.logger.Error("tcp handshake failed", "err", err.Error())
		_ = nc.Close()
		return
	}
	token := binary.BigEndian.Uint64(tokenBuf[:])

	bound, err := l.endpoint.Accept(ctx, c, token)
	if err != nil {
		l.logger.Error("tcp accept failed", "err", err.Error())
		_ = nc.Close()
		return
	}

	var sessionID reactor.ID
	select {
	case sessionID = <-bound:
	case <-ctx.Done():
		_ = nc.Close()
		return
	}

	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return
		}
		if err := transport.FeedFrame(l.broker, sessionID, frame); err != nil {
			return
		}
	}
}

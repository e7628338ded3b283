package cotp

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-s7/logger"
	"github.com/arloliu/go-s7/tpkt"
)

// Config carries the parameters of a COTP connection.
type Config struct {
	// LocalTSAP identifies the client endpoint. The zero value (rack 0,
	// slot 0) is the conventional client TSAP.
	LocalTSAP TSAP

	// RemoteTSAP selects the PLC CPU by rack and slot.
	RemoteTSAP TSAP

	// TPDUSize is the requested maximum TPDU size. Defaults to 1024 octets.
	TPDUSize TPDUSize

	// MaxReassembly bounds the reassembled payload of a fragmented data
	// transfer. Defaults to the maximum TPKT payload; the session layer
	// lowers it to the negotiated application PDU size after setup.
	MaxReassembly int

	// Logger overrides the package default logger.
	Logger logger.Logger
}

// Conn is a client-side COTP class-0 connection over a TPKT-framed byte
// stream. It owns the handshake, payload fragmentation and reassembly, and
// the Idle → AwaitConnectConfirm → Connected → Closed state machine.
//
// Conn is not safe for concurrent use; the session layer above serializes
// all access by construction.
type Conn struct {
	rw     io.ReadWriter
	cfg    Config
	logger logger.Logger

	state    atomic.Uint32
	closeMu  sync.Mutex
	tpduSize int // negotiated TPDU size in octets
	srcRef   uint16
	dstRef   uint16
}

// NewConn creates a COTP connection over rw. The connection starts in
// IdleState; call Connect to perform the handshake.
func NewConn(rw io.ReadWriter, cfg Config) *Conn {
	if cfg.TPDUSize == 0 {
		cfg.TPDUSize = TPDUSize1024
	}
	if cfg.MaxReassembly <= 0 {
		cfg.MaxReassembly = tpkt.MaxPayloadSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	c := &Conn{
		rw:       rw,
		cfg:      cfg,
		logger:   cfg.Logger,
		tpduSize: cfg.TPDUSize.Octets(),
		srcRef:   0x0001,
	}
	c.state.Store(uint32(IdleState))

	return c
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// NegotiatedTPDUSize returns the TPDU size agreed during the handshake, in
// octets. Before Connect it returns the requested size.
func (c *Conn) NegotiatedTPDUSize() int {
	return c.tpduSize
}

// SetMaxReassembly lowers the reassembly bound to the given number of bytes.
// The session layer calls this once the application PDU size is negotiated.
func (c *Conn) SetMaxReassembly(n int) {
	if n > 0 {
		c.cfg.MaxReassembly = n
	}
}

// Connect performs the CR/CC handshake.
//
// On success the connection is in ConnectedState and the negotiated TPDU size
// is the smaller of the requested and confirmed sizes. A disconnect-request
// answer fails with ErrConnectionRejected; any framing or decode failure
// closes the connection and surfaces the cause.
func (c *Conn) Connect() error {
	if !c.state.CompareAndSwap(uint32(IdleState), uint32(AwaitConnectConfirmState)) {
		return fmt.Errorf("%w: connect in state %s", ErrInvalidTransition, c.State())
	}

	cr := &ConnectPDU{
		Type:     PDUTypeConnectRequest,
		SrcRef:   c.srcRef,
		Class:    classAny,
		SrcTSAP:  c.cfg.LocalTSAP,
		DstTSAP:  c.cfg.RemoteTSAP,
		TPDUSize: c.cfg.TPDUSize,
	}

	if err := tpkt.Write(c.rw, cr.Encode()); err != nil {
		c.toClosed()
		return fmt.Errorf("send connect request: %w", err)
	}

	payload, err := tpkt.Decode(c.rw)
	if err != nil {
		c.toClosed()
		return fmt.Errorf("receive connect confirm: %w", err)
	}

	pdu, err := Decode(payload)
	if err != nil {
		c.toClosed()
		return fmt.Errorf("decode connect confirm: %w", err)
	}

	switch p := pdu.(type) {
	case *ConnectPDU:
		if p.Type != PDUTypeConnectConfirm {
			c.toClosed()
			return fmt.Errorf("%w: %s during handshake", ErrUnexpectedPDU, p.Type)
		}
		if p.TPDUSize.Valid() && p.TPDUSize.Octets() < c.tpduSize {
			c.tpduSize = p.TPDUSize.Octets()
		}
		c.dstRef = p.SrcRef
		c.state.Store(uint32(ConnectedState))
		c.logger.Debug("cotp connected",
			"remote_tsap", c.cfg.RemoteTSAP.String(), "tpdu_size", c.tpduSize)

		return nil

	case *DisconnectPDU:
		c.toClosed()
		return fmt.Errorf("%w: reason 0x%02x", ErrConnectionRejected, p.Reason)

	default:
		c.toClosed()
		return fmt.Errorf("%w: during handshake", ErrUnexpectedPDU)
	}
}

// Send fragments payload into data-transfer units no larger than the
// negotiated TPDU size and writes them in order. All units but the last carry
// a cleared end-of-unit flag.
func (c *Conn) Send(payload []byte) error {
	if !c.State().IsConnected() {
		return ErrConnClosed
	}

	chunk := c.tpduSize - dtHeaderSize
	for first := true; first || len(payload) > 0; first = false {
		n := len(payload)
		if n > chunk {
			n = chunk
		}

		dt := &DataPDU{
			EndOfUnit: n == len(payload),
			Payload:   payload[:n],
		}
		if err := tpkt.Write(c.rw, dt.Encode()); err != nil {
			c.toClosed()
			return fmt.Errorf("send data transfer: %w", err)
		}
		payload = payload[n:]
	}

	return nil
}

// Receive accumulates data-transfer units until one with the end-of-unit flag
// arrives, then returns the reassembled payload.
//
// A unit that would push the reassembly buffer past the negotiated maximum is
// a protocol violation: the connection closes and ErrReassemblyOverflow is
// returned. A disconnect-request closes the connection with
// ErrDisconnectReceived.
func (c *Conn) Receive() ([]byte, error) {
	if !c.State().IsConnected() {
		return nil, ErrConnClosed
	}

	var assembled []byte
	for {
		payload, err := tpkt.Decode(c.rw)
		if err != nil {
			c.toClosed()
			return nil, fmt.Errorf("receive data transfer: %w", err)
		}

		pdu, err := Decode(payload)
		if err != nil {
			c.toClosed()
			return nil, fmt.Errorf("decode data transfer: %w", err)
		}

		switch p := pdu.(type) {
		case *DataPDU:
			if len(assembled)+len(p.Payload) > c.cfg.MaxReassembly {
				c.toClosed()
				return nil, fmt.Errorf("%w: %d bytes", ErrReassemblyOverflow, len(assembled)+len(p.Payload))
			}
			assembled = append(assembled, p.Payload...)
			if p.EndOfUnit {
				return assembled, nil
			}

		case *DisconnectPDU:
			c.toClosed()
			return nil, fmt.Errorf("%w: reason 0x%02x", ErrDisconnectReceived, p.Reason)

		default:
			c.toClosed()
			return nil, fmt.Errorf("%w: while connected", ErrUnexpectedPDU)
		}
	}
}

// Close sends a best-effort disconnect-request and moves the connection to
// ClosedState. It is idempotent; errors from the disconnect write are ignored.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.State().IsClosed() {
		return nil
	}

	if c.State().IsConnected() {
		dr := &DisconnectPDU{
			DstRef: c.dstRef,
			SrcRef: c.srcRef,
			Reason: 0x80, // normal disconnect
		}
		if err := tpkt.Write(c.rw, dr.Encode()); err != nil {
			c.logger.Debug("disconnect request send failed", "error", err)
		}
	}

	c.toClosed()

	return nil
}

func (c *Conn) toClosed() {
	prev := ConnState(c.state.Swap(uint32(ClosedState)))
	if !prev.IsClosed() {
		c.logger.Debug("cotp connection closed", "prev_state", prev.String())
	}
}

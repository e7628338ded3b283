package s7client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-s7/cotp"
	"github.com/arloliu/go-s7/internal/pool"
	"github.com/arloliu/go-s7/logger"
	"github.com/arloliu/go-s7/s7"
)

// minPDULength is the smallest negotiated PDU length the client accepts.
// Every S7 CPU grants at least 240 bytes; anything below it cannot carry a
// useful request.
const minPDULength = 240

// requestQueueSize bounds the number of requests waiting behind the one
// being served.
const requestQueueSize = 10

// Client is an S7 PLC client session.
//
// A client serves one request at a time in arrival order. Requests whose
// items do not fit the negotiated PDU length are split into multiple
// request/response exchanges transparently; results are returned in item
// order regardless of the split.
type Client struct {
	cfg    *ConnectionConfig
	logger logger.Logger

	state      atomic.Int32
	refCounter atomic.Uint32

	// Session resources, recreated by each Connect. The fields are written
	// before the state turns Ready and are stable for the session lifetime.
	netConn   net.Conn
	cotpConn  *cotp.Conn
	pduLength int
	reqChan   chan *request
	done      chan struct{}
	closeOnce *sync.Once
	fatalErr  error
	wg        sync.WaitGroup

	replyChans *xsync.MapOf[uint16, chan *s7.PDU]

	metrics ConnectionMetrics
}

type request struct {
	readBatches  [][]s7.Address
	writeBatches [][]s7.WriteItem

	// positions[i] maps each item of batch i back to its index in results.
	positions [][]int

	// results is pre-sized to the caller's item count, with locally rejected
	// positions already filled in; wire exchanges fill the rest.
	results []s7.ItemResult

	resultChan chan requestResult
}

type requestResult struct {
	results []s7.ItemResult
	err     error
	fatal   bool
}

// NewClient creates a new client for the PLC described by cfg. The client
// starts disconnected; call Connect to establish the session.
func NewClient(cfg *ConnectionConfig) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	return &Client{
		cfg:    cfg,
		logger: cfg.Logger(),
	}, nil
}

// State returns the current session state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// PDULength returns the negotiated PDU length, or 0 when disconnected.
func (c *Client) PDULength() int {
	if c.State() != ReadyState {
		return 0
	}
	return c.pduLength
}

// Metrics returns the client's connection metrics. The counters accumulate
// across reconnects.
func (c *Client) Metrics() *ConnectionMetrics {
	return &c.metrics
}

// Connect dials the PLC, performs the transport handshake and negotiates the
// communication parameters. On success the client is ready to serve requests.
//
// The whole sequence is bounded by the configured connect timeout and by ctx.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(DisconnectedState), int32(ConnectingState)) {
		return ErrAlreadyConnected
	}

	err := c.connect(ctx)
	if err != nil {
		c.state.Store(int32(DisconnectedState))
		return err
	}

	c.state.Store(int32(ReadyState))
	c.metrics.incConnectCount()

	c.wg.Add(2)
	go c.senderLoop()
	go c.receiverLoop()

	c.logger.Info("session established",
		"host", c.cfg.Host(),
		"port", c.cfg.Port(),
		"pduLength", c.pduLength,
		"tpduSize", c.cotpConn.NegotiatedTPDUSize(),
	)

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.cfg.Host(), strconv.Itoa(c.cfg.Port()))
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout()}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	// One deadline covers the handshake and the negotiation.
	deadline := time.Now().Add(c.cfg.ConnectTimeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = netConn.SetDeadline(deadline)

	cotpConn := cotp.NewConn(netConn, cotp.Config{
		RemoteTSAP: cotp.TSAP{Rack: uint8(c.cfg.Rack()), Slot: uint8(c.cfg.Slot())},
		TPDUSize:   c.cfg.TPDUSize(),
		Logger:     c.logger,
	})
	if err := cotpConn.Connect(); err != nil {
		netConn.Close()
		return fmt.Errorf("transport handshake: %w", err)
	}

	c.state.Store(int32(NegotiatingState))

	pduLength, err := c.negotiate(cotpConn)
	if err != nil {
		_ = cotpConn.Close()
		netConn.Close()
		return err
	}

	_ = netConn.SetDeadline(time.Time{})

	// Responses never exceed the negotiated PDU length; anything larger is
	// a broken peer.
	cotpConn.SetMaxReassembly(pduLength)

	c.netConn = netConn
	c.cotpConn = cotpConn
	c.pduLength = pduLength
	c.reqChan = make(chan *request, requestQueueSize)
	c.done = make(chan struct{})
	c.closeOnce = &sync.Once{}
	c.fatalErr = nil
	c.replyChans = xsync.NewMapOf[uint16, chan *s7.PDU]()

	return nil
}

// negotiate performs the setup-communication exchange and returns the
// effective PDU length: the smaller of the requested and granted values.
func (c *Client) negotiate(cotpConn *cotp.Conn) (int, error) {
	requested := c.cfg.RequestedPDULength()
	ref := c.nextRef()

	raw := s7.EncodeSetupRequest(ref, s7.SetupParams{
		MaxAMQCalling: 1,
		MaxAMQCalled:  1,
		PDULength:     uint16(requested),
	})
	if err := cotpConn.Send(raw); err != nil {
		return 0, fmt.Errorf("setup communication: %w", err)
	}

	payload, err := cotpConn.Receive()
	if err != nil {
		return 0, fmt.Errorf("setup communication: %w", err)
	}
	pdu, err := s7.DecodePDU(payload)
	if err != nil {
		return 0, fmt.Errorf("setup communication: %w", err)
	}
	if pdu.Ref != ref {
		return 0, fmt.Errorf("%w: setup response reference %d, want %d", ErrProtocolDesync, pdu.Ref, ref)
	}

	params, err := s7.DecodeSetupResponse(pdu)
	if err != nil {
		return 0, fmt.Errorf("setup communication: %w", err)
	}

	granted := int(params.PDULength)
	effective := granted
	if requested < granted {
		effective = requested
	}
	if effective < minPDULength {
		return 0, fmt.Errorf("%w: PLC granted %d bytes, need at least %d",
			ErrNegotiationFailed, granted, minPDULength)
	}

	c.logger.Debug("communication parameters negotiated",
		"requested", requested,
		"granted", granted,
		"effective", effective,
		"maxAMQCalling", params.MaxAMQCalling,
		"maxAMQCalled", params.MaxAMQCalled,
	)

	return effective, nil
}

// Disconnect tears the session down. It is safe to call in any state and
// more than once. A disconnected client can connect again.
func (c *Client) Disconnect() error {
	if c.State() == DisconnectedState {
		return nil
	}

	c.teardown(ErrDisconnected)
	c.wg.Wait()

	return nil
}

// teardown closes the session once and records the fatal error queued and
// in-flight callers observe.
func (c *Client) teardown(err error) {
	once := c.closeOnce
	if once == nil {
		c.state.Store(int32(DisconnectedState))
		return
	}

	once.Do(func() {
		c.fatalErr = err
		c.state.Store(int32(DisconnectedState))

		// Best effort disconnect request; the peer may already be gone.
		_ = c.netConn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.cotpConn.Close()
		_ = c.netConn.Close()

		close(c.done)

		if !errors.Is(err, ErrDisconnected) {
			c.logger.Error("session terminated", "error", err)
		} else {
			c.logger.Debug("session closed")
		}
	})
}

// fatalError returns the error the session was torn down with.
func (c *Client) fatalError() error {
	if err := c.fatalErr; err != nil {
		return err
	}
	return ErrDisconnected
}

func (c *Client) nextRef() uint16 {
	return uint16(c.refCounter.Add(1))
}

// Read reads the given addresses in one logical request and returns one
// result per address, in order. Per-item failures are reported in the
// ItemResult; the returned error covers failures of the request as a whole.
func (c *Client) Read(ctx context.Context, addrs []s7.Address) ([]s7.ItemResult, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	if c.State() != ReadyState {
		return nil, ErrDisconnected
	}

	batches, positions, results := c.planReadBatches(addrs)
	if len(batches) == 0 {
		// Every item was rejected locally; nothing to put on the wire.
		return results, nil
	}

	return c.submit(ctx, &request{
		readBatches: batches,
		positions:   positions,
		results:     results,
		resultChan:  make(chan requestResult, 1),
	})
}

// Write stores the given items in one logical request and returns one result
// per item, in order. Each item's data must be exactly its address's
// DataSize bytes; an item that fails this check is rejected in its own
// result position without reaching the wire, and its siblings still go out.
func (c *Client) Write(ctx context.Context, items []s7.WriteItem) ([]s7.ItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if c.State() != ReadyState {
		return nil, ErrDisconnected
	}

	batches, positions, results := c.planWriteBatches(items)
	if len(batches) == 0 {
		return results, nil
	}

	return c.submit(ctx, &request{
		writeBatches: batches,
		positions:    positions,
		results:      results,
		resultChan:   make(chan requestResult, 1),
	})
}

// ReadAddress parses a textual address, reads it and returns the data bytes.
func (c *Client) ReadAddress(ctx context.Context, address string) ([]byte, error) {
	addr, err := s7.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	results, err := c.Read(ctx, []s7.Address{addr})
	if err != nil {
		return nil, err
	}
	if err := results[0].Err(); err != nil {
		return nil, err
	}

	return results[0].Data, nil
}

// WriteAddress parses a textual address and writes the given data bytes to it.
func (c *Client) WriteAddress(ctx context.Context, address string, data []byte) error {
	addr, err := s7.ParseAddress(address)
	if err != nil {
		return err
	}

	results, err := c.Write(ctx, []s7.WriteItem{{Address: addr, Data: data}})
	if err != nil {
		return err
	}

	return results[0].Err()
}

// submit queues a request and waits for its result. Queueing is bounded by
// the request timeout; a cancelled caller detaches while the exchange
// completes in the background.
func (c *Client) submit(ctx context.Context, req *request) ([]s7.ItemResult, error) {
	queueTimer := pool.GetTimer(c.cfg.RequestTimeout())
	defer pool.PutTimer(queueTimer)

	select {
	case c.reqChan <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.fatalError()
	case <-queueTimer.C:
		return nil, fmt.Errorf("%w: request queue full", ErrRequestTimeout)
	}

	select {
	case res := <-req.resultChan:
		return res.results, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// The session died, but the serving goroutine may have delivered the
		// result just before.
		select {
		case res := <-req.resultChan:
			return res.results, res.err
		default:
			return nil, c.fatalError()
		}
	}
}

// planReadBatches splits addresses into batches whose request and worst-case
// response each fit the negotiated PDU length. An address that can never fit
// is rejected in its own result position and kept off the wire; its siblings
// still go out.
func (c *Client) planReadBatches(addrs []s7.Address) ([][]s7.Address, [][]int, []s7.ItemResult) {
	results := make([]s7.ItemResult, len(addrs))

	var batches [][]s7.Address
	var positions [][]int
	var cur []s7.Address
	var curPos []int
	respSize := s7.AckDataHeaderSize + 2

	for i, addr := range addrs {
		itemResp := s7.ReadResponseItemSize(addr)
		if s7.AckDataHeaderSize+2+itemResp > c.pduLength {
			results[i] = s7.ItemResult{LocalErr: fmt.Errorf(
				"%w: %s needs a %d byte response", ErrItemTooLarge, addr, itemResp)}
			continue
		}

		if len(cur) > 0 &&
			(s7.ReadRequestSize(len(cur)+1) > c.pduLength || respSize+itemResp > c.pduLength) {
			batches = append(batches, cur)
			positions = append(positions, curPos)
			cur, curPos = nil, nil
			respSize = s7.AckDataHeaderSize + 2
		}

		cur = append(cur, addr)
		curPos = append(curPos, i)
		respSize += itemResp
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
		positions = append(positions, curPos)
	}

	return batches, positions, results
}

// planWriteBatches validates the items and splits them into batches whose
// request fits the negotiated PDU length. Items failing local validation are
// rejected in their own result position and kept off the wire.
func (c *Client) planWriteBatches(items []s7.WriteItem) ([][]s7.WriteItem, [][]int, []s7.ItemResult) {
	results := make([]s7.ItemResult, len(items))

	var batches [][]s7.WriteItem
	var positions [][]int
	var cur []s7.WriteItem
	var curPos []int
	reqSize := s7.JobHeaderSize + 2

	for i, item := range items {
		if len(item.Data) != item.Address.DataSize() {
			results[i] = s7.ItemResult{LocalErr: fmt.Errorf("%w: %s takes %d bytes, got %d",
				ErrValueSizeMismatch, item.Address, item.Address.DataSize(), len(item.Data))}
			continue
		}

		itemReq := s7.WriteRequestItemSize(item)
		if s7.JobHeaderSize+2+itemReq > c.pduLength {
			results[i] = s7.ItemResult{LocalErr: fmt.Errorf(
				"%w: %s needs a %d byte request", ErrItemTooLarge, item.Address, itemReq)}
			continue
		}

		if len(cur) > 0 && reqSize+itemReq > c.pduLength {
			batches = append(batches, cur)
			positions = append(positions, curPos)
			cur, curPos = nil, nil
			reqSize = s7.JobHeaderSize + 2
		}

		cur = append(cur, item)
		curPos = append(curPos, i)
		reqSize += itemReq
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
		positions = append(positions, curPos)
	}

	return batches, positions, results
}

// senderLoop serves queued requests one at a time, in arrival order.
func (c *Client) senderLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			c.drainRequests()
			return

		case req := <-c.reqChan:
			res := c.serve(req)
			req.resultChan <- res

			if res.fatal {
				c.teardown(res.err)
				c.drainRequests()
				return
			}
		}
	}
}

// drainRequests fails every request still queued after the session died.
func (c *Client) drainRequests() {
	for {
		select {
		case req := <-c.reqChan:
			req.resultChan <- requestResult{err: c.fatalError()}
		default:
			return
		}
	}
}

// serve runs all exchanges of one request and scatters the wire results back
// into their original positions alongside any locally rejected items.
func (c *Client) serve(req *request) requestResult {
	c.metrics.incRequestCount()

	for bi, batch := range req.readBatches {
		ref := c.nextRef()
		pdu, err := c.exchange(s7.EncodeReadRequest(ref, batch), ref)
		if err != nil {
			c.metrics.incRequestErrCount()
			return requestResult{err: err, fatal: true}
		}

		items, err := s7.DecodeReadResponse(pdu, len(batch))
		if err != nil {
			return c.responseError(err)
		}

		c.metrics.addReadItemCount(len(items))
		for j, item := range items {
			req.results[req.positions[bi][j]] = item
		}
	}

	for bi, batch := range req.writeBatches {
		ref := c.nextRef()
		pdu, err := c.exchange(s7.EncodeWriteRequest(ref, batch), ref)
		if err != nil {
			c.metrics.incRequestErrCount()
			return requestResult{err: err, fatal: true}
		}

		items, err := s7.DecodeWriteResponse(pdu, len(batch))
		if err != nil {
			return c.responseError(err)
		}

		c.metrics.addWriteItemCount(len(items))
		for j, item := range items {
			req.results[req.positions[bi][j]] = item
		}
	}

	for _, r := range req.results {
		if r.Err() != nil {
			c.metrics.incItemErrCount()
		}
	}

	return requestResult{results: req.results}
}

// responseError classifies a response decode failure. A header error means
// the PLC refused the request but the session is intact; anything else means
// the peers disagree about the protocol and the session must go down.
func (c *Client) responseError(err error) requestResult {
	c.metrics.incRequestErrCount()

	var headerErr *s7.HeaderError
	if errors.As(err, &headerErr) {
		return requestResult{err: err}
	}

	return requestResult{err: err, fatal: true}
}

// exchange sends one job PDU and waits for its acknowledgement, bounded by
// the request timeout.
func (c *Client) exchange(raw []byte, ref uint16) (*s7.PDU, error) {
	replyChan := make(chan *s7.PDU, 1)
	c.replyChans.Store(ref, replyChan)
	defer c.replyChans.Delete(ref)

	_ = c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout()))
	if err := c.cotpConn.Send(raw); err != nil {
		return nil, err
	}
	c.metrics.incPDUSendCount()

	timer := pool.GetTimer(c.cfg.RequestTimeout())
	defer pool.PutTimer(timer)

	select {
	case pdu := <-replyChan:
		return pdu, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response for reference %d", ErrRequestTimeout, ref)
	case <-c.done:
		return nil, c.fatalError()
	}
}

// receiverLoop reads PDUs off the transport and routes them to the waiting
// exchange by reference number.
func (c *Client) receiverLoop() {
	defer c.wg.Done()

	for {
		payload, err := c.cotpConn.Receive()
		if err != nil {
			select {
			case <-c.done:
				// Normal shutdown; the read failed because the socket closed.
			default:
				c.teardown(err)
			}
			return
		}

		pdu, err := s7.DecodePDU(payload)
		if err != nil {
			c.teardown(err)
			return
		}
		c.metrics.incPDURecvCount()

		replyChan, ok := c.replyChans.LoadAndDelete(pdu.Ref)
		if !ok {
			c.teardown(fmt.Errorf("%w: unexpected reference %d", ErrProtocolDesync, pdu.Ref))
			return
		}
		replyChan <- pdu
	}
}

package s7client

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-s7/cotp"
	"github.com/arloliu/go-s7/s7"
	"github.com/arloliu/go-s7/tpkt"
)

// fakePLC accepts one connection at a time and answers the transport
// handshake, the parameter negotiation and subsequent jobs.
type fakePLC struct {
	listener net.Listener
	grantPDU uint16

	// onJob builds the raw reply for a read or write job. A nil return
	// closes the connection. When onJob itself is nil, jobs are answered
	// with defaultReply.
	onJob func(pdu *s7.PDU) []byte

	jobCount atomic.Int32
}

func startFakePLC(t *testing.T, grantPDU uint16, onJob func(*s7.PDU) []byte) *fakePLC {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	plc := &fakePLC{
		listener: listener,
		grantPDU: grantPDU,
		onJob:    onJob,
	}
	go plc.acceptLoop()

	return plc
}

func (p *fakePLC) port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *fakePLC) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.serve(conn)
	}
}

func (p *fakePLC) serve(conn net.Conn) {
	defer conn.Close()

	// Transport handshake: echo the proposed TPDU size back.
	payload, err := tpkt.Decode(conn)
	if err != nil {
		return
	}
	decoded, err := cotp.Decode(payload)
	if err != nil {
		return
	}
	cr, ok := decoded.(*cotp.ConnectPDU)
	if !ok {
		return
	}
	cc := &cotp.ConnectPDU{
		Type:     cotp.PDUTypeConnectConfirm,
		DstRef:   cr.SrcRef,
		SrcRef:   0x4431,
		SrcTSAP:  cr.SrcTSAP,
		DstTSAP:  cr.DstTSAP,
		TPDUSize: cr.TPDUSize,
	}
	if err := tpkt.Write(conn, cc.Encode()); err != nil {
		return
	}

	for {
		raw, err := p.recvPayload(conn)
		if err != nil {
			return
		}
		pdu, err := s7.DecodePDU(raw)
		if err != nil {
			return
		}

		var reply []byte
		if len(pdu.Params) > 0 && pdu.Params[0] == s7.FuncSetupComm {
			reply = ackData(pdu.Ref,
				[]byte{0xf0, 0x00, 0x00, 0x01, 0x00, 0x01, byte(p.grantPDU >> 8), byte(p.grantPDU)},
				nil)
		} else {
			p.jobCount.Add(1)
			if p.onJob != nil {
				reply = p.onJob(pdu)
			} else {
				reply = defaultReply(pdu)
			}
		}
		if reply == nil {
			return
		}

		dt := &cotp.DataPDU{EndOfUnit: true, Payload: reply}
		if err := tpkt.Write(conn, dt.Encode()); err != nil {
			return
		}
	}
}

// recvPayload reassembles one transport payload.
func (p *fakePLC) recvPayload(conn net.Conn) ([]byte, error) {
	var buf []byte
	for {
		payload, err := tpkt.Decode(conn)
		if err != nil {
			return nil, err
		}
		decoded, err := cotp.Decode(payload)
		if err != nil {
			return nil, err
		}
		dt, ok := decoded.(*cotp.DataPDU)
		if !ok {
			return nil, fmt.Errorf("unexpected transport PDU %T", decoded)
		}
		buf = append(buf, dt.Payload...)
		if dt.EndOfUnit {
			return buf, nil
		}
	}
}

// ackData hand-encodes an acknowledgement PDU with a zero error class.
func ackData(ref uint16, params, data []byte) []byte {
	buf := []byte{0x32, 0x03, 0x00, 0x00}
	buf = binary.BigEndian.AppendUint16(buf, ref)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(params)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(data)))
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, params...)

	return append(buf, data...)
}

// defaultReply answers read jobs with zero-filled data of the requested size
// and write jobs with per-item success.
func defaultReply(pdu *s7.PDU) []byte {
	if len(pdu.Params) < 2 {
		return nil
	}
	function := pdu.Params[0]
	count := int(pdu.Params[1])

	switch function {
	case s7.FuncRead:
		var data []byte
		for i := 0; i < count; i++ {
			spec := pdu.Params[2+i*s7.ItemSpecSize : 2+(i+1)*s7.ItemSpecSize]
			transport := spec[3]
			elements := int(binary.BigEndian.Uint16(spec[4:6]))

			var size int
			switch transport {
			case 0x01: // bit
				size = (elements + 7) / 8
			case 0x02: // byte
				size = elements
			case 0x04: // word
				size = 2 * elements
			default: // dword
				size = 4 * elements
			}

			data = append(data, 0xff, 0x04)
			data = binary.BigEndian.AppendUint16(data, uint16(size*8))
			data = append(data, make([]byte, size)...)
			if size%2 != 0 && i != count-1 {
				data = append(data, 0x00)
			}
		}
		return ackData(pdu.Ref, []byte{s7.FuncRead, byte(count)}, data)

	case s7.FuncWrite:
		data := make([]byte, count)
		for i := range data {
			data[i] = 0xff
		}
		return ackData(pdu.Ref, []byte{s7.FuncWrite, byte(count)}, data)

	default:
		return nil
	}
}

func newTestClient(t *testing.T, plc *fakePLC, opts ...ConnOption) *Client {
	t.Helper()

	opts = append([]ConnOption{
		WithPort(plc.port()),
		WithRequestTimeout(1 * time.Second),
		WithConnectTimeout(2 * time.Second),
	}, opts...)

	cfg, err := NewConnectionConfig("127.0.0.1", opts...)
	require.NoError(t, err)

	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect() })

	return client
}

func TestClientConnectNegotiation(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 240, nil)
	client := newTestClient(t, plc)

	require.Equal(DisconnectedState, client.State())
	require.NoError(client.Connect(context.Background()))
	require.Equal(ReadyState, client.State())

	// Requested 960, granted 240: the smaller value wins.
	require.Equal(240, client.PDULength())
	require.Equal(uint64(1), client.Metrics().ConnectCount.Load())

	require.ErrorIs(client.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(client.Disconnect())
	require.Equal(DisconnectedState, client.State())
	require.Equal(0, client.PDULength())
	require.NoError(client.Disconnect())
}

func TestClientNegotiationFailed(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 120, nil)
	client := newTestClient(t, plc)

	err := client.Connect(context.Background())
	require.ErrorIs(err, ErrNegotiationFailed)
	require.Equal(DisconnectedState, client.State())
}

func TestClientReadSingleWord(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		return ackData(pdu.Ref,
			[]byte{s7.FuncRead, 0x01},
			[]byte{0xff, 0x04, 0x00, 0x10, 0x12, 0x34})
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	addr, err := s7.ParseAddress("DB5.DBW10")
	require.NoError(err)

	results, err := client.Read(context.Background(), []s7.Address{addr})
	require.NoError(err)
	require.Len(results, 1)
	require.NoError(results[0].Err())
	require.Equal([]byte{0x12, 0x34}, results[0].Data)

	require.Equal(uint64(1), client.Metrics().ReadItemCount.Load())
}

func TestClientReadBatchSplitting(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 240, nil)
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	// 500 dword reads cannot fit one 240-byte exchange in either direction;
	// the client must split them and stitch the results back in order.
	addrs := make([]s7.Address, 500)
	for i := range addrs {
		addr, err := s7.ParseAddress(fmt.Sprintf("DB1.DBD%d", i*4))
		require.NoError(err)
		addrs[i] = addr
	}

	results, err := client.Read(context.Background(), addrs)
	require.NoError(err)
	require.Len(results, 500)
	for _, r := range results {
		require.NoError(r.Err())
		require.Len(r.Data, 4)
	}

	require.Greater(plc.jobCount.Load(), int32(1))
	require.Equal(uint64(1), client.Metrics().RequestCount.Load())
	require.Equal(uint64(500), client.Metrics().ReadItemCount.Load())
}

func TestClientReadPerItemError(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		return ackData(pdu.Ref,
			[]byte{s7.FuncRead, 0x02},
			[]byte{
				0x0a, 0x00, 0x00, 0x00, // object does not exist
				0xff, 0x04, 0x00, 0x10, 0xbe, 0xef,
			})
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	addrs := []s7.Address{mustAddr(t, "DB9.DBW0"), mustAddr(t, "DB1.DBW0")}
	results, err := client.Read(context.Background(), addrs)
	require.NoError(err)
	require.Len(results, 2)
	require.ErrorIs(results[0].Err(), s7.ErrObjectNotExist)
	require.Equal([]byte{0xbe, 0xef}, results[1].Data)

	// The session stays up after a per-item failure.
	require.Equal(ReadyState, client.State())
	require.Equal(uint64(1), client.Metrics().ItemErrCount.Load())
}

func TestClientWrite(t *testing.T) {
	require := require.New(t)

	jobs := make(chan *s7.PDU, 1)
	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		jobs <- pdu
		return defaultReply(pdu)
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	items := []s7.WriteItem{{Address: mustAddr(t, "MW0"), Data: []byte{0x12, 0x34}}}
	results, err := client.Write(context.Background(), items)
	require.NoError(err)
	require.Len(results, 1)
	require.NoError(results[0].Err())

	job := <-jobs
	require.Equal(byte(s7.FuncWrite), job.Params[0])
	require.Equal([]byte{0x00, 0x04, 0x00, 0x10, 0x12, 0x34}, job.Data)
	require.Equal(uint64(1), client.Metrics().WriteItemCount.Load())
}

func TestClientWriteSizeMismatch(t *testing.T) {
	require := require.New(t)

	jobs := make(chan *s7.PDU, 1)
	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		jobs <- pdu
		return defaultReply(pdu)
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	// A word takes two bytes; the one-byte item is rejected locally in its
	// own position while its sibling is still written.
	items := []s7.WriteItem{
		{Address: mustAddr(t, "MW0"), Data: []byte{0x12, 0x34}},
		{Address: mustAddr(t, "MW2"), Data: []byte{0x12}},
	}
	results, err := client.Write(context.Background(), items)
	require.NoError(err)
	require.Len(results, 2)
	require.NoError(results[0].Err())
	require.ErrorIs(results[1].Err(), ErrValueSizeMismatch)

	// Only the valid item reached the wire.
	job := <-jobs
	require.Equal(byte(1), job.Params[1])
	require.Equal(int32(1), plc.jobCount.Load())
}

func TestClientWriteAllItemsRejected(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, nil)
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	items := []s7.WriteItem{{Address: mustAddr(t, "MW0"), Data: []byte{0x12}}}
	results, err := client.Write(context.Background(), items)
	require.NoError(err)
	require.Len(results, 1)
	require.ErrorIs(results[0].Err(), ErrValueSizeMismatch)
	require.Zero(plc.jobCount.Load())
}

func TestClientItemTooLarge(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 240, nil)
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	// The 500-byte item can never fit a 240-byte response; it is rejected in
	// its own position, the sibling read still happens.
	addrs := []s7.Address{
		mustAddr(t, "DB1.DBW0"),
		mustAddr(t, "DB1.DBB0[500]"),
	}
	results, err := client.Read(context.Background(), addrs)
	require.NoError(err)
	require.Len(results, 2)
	require.NoError(results[0].Err())
	require.Len(results[0].Data, 2)
	require.ErrorIs(results[1].Err(), ErrItemTooLarge)
	require.Equal(int32(1), plc.jobCount.Load())

	// When every item is oversized nothing reaches the wire at all.
	results, err = client.Read(context.Background(), []s7.Address{mustAddr(t, "DB1.DBB0[500]")})
	require.NoError(err)
	require.Len(results, 1)
	require.ErrorIs(results[0].Err(), ErrItemTooLarge)
	require.Equal(int32(1), plc.jobCount.Load())
}

func TestClientAddressHelpers(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, nil)
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	data, err := client.ReadAddress(context.Background(), "DB5.DBW10")
	require.NoError(err)
	require.Equal([]byte{0x00, 0x00}, data)

	require.NoError(client.WriteAddress(context.Background(), "M0.1", []byte{0x01}))

	_, err = client.ReadAddress(context.Background(), "not an address")
	require.ErrorIs(err, s7.ErrInvalidAddress)
}

func TestClientReferenceDesync(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		return ackData(pdu.Ref+1,
			[]byte{s7.FuncRead, 0x01},
			[]byte{0xff, 0x04, 0x00, 0x10, 0x12, 0x34})
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	_, err := client.Read(context.Background(), []s7.Address{mustAddr(t, "DB1.DBW0")})
	require.ErrorIs(err, ErrProtocolDesync)
	require.Equal(DisconnectedState, client.State())

	// The dead session rejects further requests.
	_, err = client.Read(context.Background(), []s7.Address{mustAddr(t, "DB1.DBW0")})
	require.ErrorIs(err, ErrDisconnected)
}

func TestClientPeerDropMidRequest(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		return nil // close the connection instead of answering
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	_, err := client.Read(context.Background(), []s7.Address{mustAddr(t, "DB1.DBW0")})
	require.Error(err)

	require.Eventually(func() bool {
		return client.State() == DisconnectedState
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientCancelledCallerDetaches(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, func(pdu *s7.PDU) []byte {
		time.Sleep(200 * time.Millisecond)
		return defaultReply(pdu)
	})
	client := newTestClient(t, plc)
	require.NoError(client.Connect(context.Background()))

	// The caller gives up before the reply arrives; the exchange still runs
	// to completion so the reference sequence stays in sync.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Read(ctx, []s7.Address{mustAddr(t, "DB1.DBW0")})
	require.ErrorIs(err, context.DeadlineExceeded)

	// The session is still usable for the next caller.
	results, err := client.Read(context.Background(), []s7.Address{mustAddr(t, "DB1.DBW0")})
	require.NoError(err)
	require.Len(results, 1)
	require.NoError(results[0].Err())
}

func TestClientReconnect(t *testing.T) {
	require := require.New(t)

	plc := startFakePLC(t, 480, nil)
	client := newTestClient(t, plc)

	require.NoError(client.Connect(context.Background()))
	require.NoError(client.Disconnect())

	require.NoError(client.Connect(context.Background()))
	require.Equal(ReadyState, client.State())

	data, err := client.ReadAddress(context.Background(), "MB4")
	require.NoError(err)
	require.Len(data, 1)

	require.Equal(uint64(2), client.Metrics().ConnectCount.Load())
}

func mustAddr(t *testing.T, s string) s7.Address {
	t.Helper()
	addr, err := s7.ParseAddress(s)
	require.NoError(t, err)
	return addr
}

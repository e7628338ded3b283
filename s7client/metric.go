package s7client

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a client session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// RequestCount indicates the number of read/write requests served.
	RequestCount atomic.Uint64
	// RequestErrCount indicates the number of requests that failed as a whole.
	RequestErrCount atomic.Uint64

	// ReadItemCount indicates the number of items read.
	ReadItemCount atomic.Uint64
	// WriteItemCount indicates the number of items written.
	WriteItemCount atomic.Uint64
	// ItemErrCount indicates the number of items the PLC reported an error for.
	ItemErrCount atomic.Uint64

	// PDUSendCount indicates the number of PDUs sent.
	PDUSendCount atomic.Uint64
	// PDURecvCount indicates the number of PDUs received.
	PDURecvCount atomic.Uint64

	// ConnectCount indicates the number of sessions established.
	ConnectCount atomic.Uint64
}

func (m *ConnectionMetrics) incRequestCount() {
	m.RequestCount.Add(1)
}

func (m *ConnectionMetrics) incRequestErrCount() {
	m.RequestErrCount.Add(1)
}

func (m *ConnectionMetrics) addReadItemCount(n int) {
	m.ReadItemCount.Add(uint64(n))
}

func (m *ConnectionMetrics) addWriteItemCount(n int) {
	m.WriteItemCount.Add(uint64(n))
}

func (m *ConnectionMetrics) incItemErrCount() {
	m.ItemErrCount.Add(1)
}

func (m *ConnectionMetrics) incPDUSendCount() {
	m.PDUSendCount.Add(1)
}

func (m *ConnectionMetrics) incPDURecvCount() {
	m.PDURecvCount.Add(1)
}

func (m *ConnectionMetrics) incConnectCount() {
	m.ConnectCount.Add(1)
}

package s7client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-s7/cotp"
	"github.com/arloliu/go-s7/logger"
)

func TestNewConnectionConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("192.168.0.10")
	require.NoError(err)

	require.Equal("192.168.0.10", cfg.Host())
	require.Equal(102, cfg.Port())
	require.Equal(0, cfg.Rack())
	require.Equal(2, cfg.Slot())
	require.Equal(960, cfg.RequestedPDULength())
	require.Equal(cotp.TPDUSize1024, cfg.TPDUSize())
	require.Equal(10*time.Second, cfg.ConnectTimeout())
	require.Equal(5*time.Second, cfg.RequestTimeout())
	require.NotNil(cfg.Logger())
}

func TestNewConnectionConfigOptions(t *testing.T) {
	require := require.New(t)

	mockLogger := logger.NewMockLogger()
	cfg, err := NewConnectionConfig("plc.factory.local",
		WithPort(1102),
		WithRack(1),
		WithSlot(3),
		WithRequestedPDULength(480),
		WithTPDUSize(cotp.TPDUSize512),
		WithConnectTimeout(3*time.Second),
		WithRequestTimeout(2*time.Second),
		WithLogger(mockLogger),
	)
	require.NoError(err)

	require.Equal("plc.factory.local", cfg.Host())
	require.Equal(1102, cfg.Port())
	require.Equal(1, cfg.Rack())
	require.Equal(3, cfg.Slot())
	require.Equal(480, cfg.RequestedPDULength())
	require.Equal(cotp.TPDUSize512, cfg.TPDUSize())
	require.Equal(3*time.Second, cfg.ConnectTimeout())
	require.Equal(2*time.Second, cfg.RequestTimeout())
	require.Same(mockLogger, cfg.Logger())
}

func TestNewConnectionConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		host string
		opts []ConnOption
	}{
		{name: "empty host", host: ""},
		{name: "port too small", host: "10.0.0.1", opts: []ConnOption{WithPort(0)}},
		{name: "port too large", host: "10.0.0.1", opts: []ConnOption{WithPort(70000)}},
		{name: "rack out of range", host: "10.0.0.1", opts: []ConnOption{WithRack(8)}},
		{name: "slot out of range", host: "10.0.0.1", opts: []ConnOption{WithSlot(32)}},
		{name: "pdu length too small", host: "10.0.0.1", opts: []ConnOption{WithRequestedPDULength(120)}},
		{name: "pdu length too large", host: "10.0.0.1", opts: []ConnOption{WithRequestedPDULength(2048)}},
		{name: "bad tpdu size", host: "10.0.0.1", opts: []ConnOption{WithTPDUSize(cotp.TPDUSize(0x20))}},
		{name: "connect timeout too short", host: "10.0.0.1", opts: []ConnOption{WithConnectTimeout(time.Millisecond)}},
		{name: "request timeout too short", host: "10.0.0.1", opts: []ConnOption{WithRequestTimeout(time.Millisecond)}},
		{name: "nil logger", host: "10.0.0.1", opts: []ConnOption{WithLogger(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConnectionConfig(tt.host, tt.opts...)
			require.Error(t, err)
		})
	}
}

package s7client

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-s7/cotp"
	"github.com/arloliu/go-s7/logger"
)

// ErrConfigNil indicates that a nil ConnectionConfig was provided.
var ErrConfigNil = errors.New("connection config is nil")

// ConnectionConfig represents the configuration parameters for a PLC client
// connection.
type ConnectionConfig struct {
	mu sync.RWMutex

	// host specifies the host of the PLC.
	host string

	// port specifies the TCP port number of the PLC. Defaults to 102, the
	// ISO-on-TCP well-known port.
	port int

	// rack and slot locate the CPU in the PLC chassis and select the remote
	// TSAP of the transport connection.
	// Defaults to rack 0, slot 2.
	rack int
	slot int

	// requestedPDULength is the PDU length proposed during communication
	// setup. The PLC may grant less; the effective length is the minimum of
	// the two. It should be between 240 and 960 bytes.
	// Defaults to 960.
	requestedPDULength int

	// tpduSize is the maximum TPDU size proposed during the transport
	// handshake.
	// Defaults to 1024 octets.
	tpduSize cotp.TPDUSize

	// connectTimeout bounds the TCP dial plus the transport handshake and
	// parameter negotiation. It should be between 1 and 30 seconds.
	// Defaults to 10 seconds.
	connectTimeout time.Duration

	// requestTimeout bounds each request/response round trip. It should be
	// between 100 milliseconds and 120 seconds.
	// Defaults to 5 seconds.
	requestTimeout time.Duration

	// logger provides a logger instance for session events and errors.
	logger logger.Logger
}

// NewConnectionConfig creates a new client connection configuration with the
// given host and optional functional options.
//
// It initializes a ConnectionConfig struct with default values and then
// applies the provided options to customize the configuration.
//
// Returns a pointer to the initialized ConnectionConfig and an error if any
// occurred during the configuration process.
func NewConnectionConfig(host string, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		port:               102,
		rack:               0,
		slot:               2,
		requestedPDULength: 960,
		tpduSize:           cotp.TPDUSize1024,
		connectTimeout:     10 * time.Second,
		requestTimeout:     5 * time.Second,
		logger:             logger.GetLogger(),
	}

	if err := withRemoteHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (cfg *ConnectionConfig) Host() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.host
}

func (cfg *ConnectionConfig) Port() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.port
}

func (cfg *ConnectionConfig) Rack() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.rack
}

func (cfg *ConnectionConfig) Slot() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.slot
}

func (cfg *ConnectionConfig) RequestedPDULength() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.requestedPDULength
}

func (cfg *ConnectionConfig) TPDUSize() cotp.TPDUSize {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.tpduSize
}

func (cfg *ConnectionConfig) ConnectTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.connectTimeout
}

func (cfg *ConnectionConfig) RequestTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.requestTimeout
}

func (cfg *ConnectionConfig) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// ConnOption represents a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc struct {
	name      string
	applyFunc func(*ConnectionConfig) error
}

func (c *connOptFunc) apply(cfg *ConnectionConfig) error { return c.applyFunc(cfg) }

func newConnOptFunc(name string, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{name: name, applyFunc: f}
}

// withRemoteHost sets the host of the PLC.
// It returns a ConnOption that validates the host and updates the configuration.
// An error is returned if the host is empty or if the configuration is nil.
func withRemoteHost(host string) ConnOption {
	return newConnOptFunc("withRemoteHost", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		// Accept a literal IP address as-is.
		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		host = strings.TrimPrefix(host, ".")
		host = strings.TrimSuffix(host, ".")
		if host == "" {
			return errors.New("invalid host")
		}
		cfg.host = host

		return nil
	})
}

// WithPort sets the TCP port number of the PLC.
// It returns a ConnOption that validates the port number and updates the configuration.
// An error is returned if the port number is out of the valid range (1-65535) or if the configuration is nil.
//
// The default value is 102.
func WithPort(port int) ConnOption {
	return newConnOptFunc("WithPort", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if port < 1 || port > 65535 {
			return errors.New("port is out of range [1, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithRack sets the rack number of the CPU.
// It returns a ConnOption that validates the rack number and updates the configuration.
// An error is returned if the rack number is out of the valid range (0-7) or if the configuration is nil.
//
// The default value is 0.
func WithRack(rack int) ConnOption {
	return newConnOptFunc("WithRack", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if rack < 0 || rack > 7 {
			return errors.New("rack is out of range [0, 7]")
		}
		cfg.rack = rack

		return nil
	})
}

// WithSlot sets the slot number of the CPU.
// It returns a ConnOption that validates the slot number and updates the configuration.
// An error is returned if the slot number is out of the valid range (0-31) or if the configuration is nil.
//
// The default value is 2, the CPU slot of S7-300/400 series PLCs. S7-1200
// and S7-1500 series use slot 0 or 1.
func WithSlot(slot int) ConnOption {
	return newConnOptFunc("WithSlot", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if slot < 0 || slot > 31 {
			return errors.New("slot is out of range [0, 31]")
		}
		cfg.slot = slot

		return nil
	})
}

// WithRequestedPDULength sets the PDU length proposed during communication
// setup.
// It returns a ConnOption that validates the length and updates the configuration.
// An error is returned if the length is out of the valid range (240-960 bytes) or if the configuration is nil.
//
// The default value is 960 bytes.
func WithRequestedPDULength(length int) ConnOption {
	return newConnOptFunc("WithRequestedPDULength", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if length < minPDULength || length > 960 {
			return errors.New("requested PDU length is out of range [240, 960]")
		}
		cfg.requestedPDULength = length

		return nil
	})
}

// WithTPDUSize sets the maximum TPDU size proposed during the transport
// handshake.
// It returns a ConnOption that validates the size and updates the configuration.
// An error is returned if the size code is invalid or if the configuration is nil.
//
// The default value is TPDUSize1024.
func WithTPDUSize(size cotp.TPDUSize) ConnOption {
	return newConnOptFunc("WithTPDUSize", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if !size.Valid() {
			return errors.New("invalid TPDU size code")
		}
		cfg.tpduSize = size

		return nil
	})
}

// WithConnectTimeout sets the timeout for establishing the session: the TCP
// dial, the transport handshake and the parameter negotiation together.
// It returns a ConnOption that validates the timeout value and updates the configuration.
// An error is returned if the timeout is outside the valid range (1-30 seconds) or if the configuration is nil.
//
// The default value is 10 seconds.
func WithConnectTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithConnectTimeout", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 1*time.Second || val > 30*time.Second {
			return errors.New("connect timeout out of range [1, 30]")
		}
		cfg.connectTimeout = val

		return nil
	})
}

// WithRequestTimeout sets the timeout for each request/response round trip.
// It returns a ConnOption that validates the timeout value and updates the configuration.
// An error is returned if the timeout is outside the valid range (0.1-120 seconds) or if the configuration is nil.
//
// The default value is 5 seconds.
func WithRequestTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithRequestTimeout", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 100*time.Millisecond || val > 120*time.Second {
			return errors.New("request timeout out of range [0.1, 120]")
		}
		cfg.requestTimeout = val

		return nil
	})
}

// WithLogger sets the logger instance for the client.
// It returns a ConnOption that updates the configuration.
// An error is returned if the logger is nil or if the configuration is nil.
//
// The default value is the package default logger.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

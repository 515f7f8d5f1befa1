// Package winc implements the control plane of a WiFi radio co-processor
// driven by the WID (Wireless ID) protocol. High level operations such as
// connect, scan or start AP are encoded as WID command messages and queued to
// a Transport; responses pushed back by the transport are decoded by a single
// consumer loop which updates driver state and publishes typed events.
//
// API calls never block waiting on the firmware. Operations whose result is
// not available yet return StatusRetryRequest or report their outcome as an
// Event.
package winc

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soypat/winc/internal/pool"
	"github.com/soypat/winc/internal/queue"
	"github.com/soypat/winc/wid"
)

// Transport carries encoded command messages to the co-processor. Send may
// block for the duration of the bus transfer; it is only ever called from the
// consumer loop. Responses travel the other way through [Device.Receive].
type Transport interface {
	Send(msg []byte) error
}

// EthSender is implemented by transports that also carry Ethernet frames.
type EthSender interface {
	SendEth(frame []byte) error
}

// PoolConfig configures the driver's buffer pool.
type PoolConfig = pool.Config

// PoolStats is a snapshot of buffer pool accounting.
type PoolStats = pool.Stats

// Config configures a Device. Zero fields take the value of DefaultConfig.
type Config struct {
	// Logger receives driver logs. Nil disables logging.
	Logger *slog.Logger
	Pool   PoolConfig
	// MaxAPPeers is the number of association slots in AP role.
	MaxAPPeers int
	// MaxScanResults is the capacity of the scan result table.
	MaxScanResults int
	// MaxScanSSIDs limits the SSID list of a directed scan.
	MaxScanSSIDs int
	// EventQueueLen is the capacity of the event channel.
	EventQueueLen int
	// CommandBufSize is the size of the pool buffer backing each command.
	CommandBufSize int
	// ChannelMask enables channels: bit 0 is channel 1, bit 13 channel 14.
	ChannelMask uint16
	Scan        ScanParams
	// OnLinkDown is called with the device lock held whenever an
	// association leaves the connected state. It must not call back into
	// the Device. Transport security contexts are torn down here.
	OnLinkDown func(h AssocHandle)
}

// DefaultConfig returns the configuration used for zero Config fields.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			Align:         pool.DefaultAlign,
			Priorities:    numPriorities,
			ReservedCount: 8,
			ReservedSize:  MTU + ethHeaderLen,
		},
		MaxAPPeers:     8,
		MaxScanResults: 32,
		MaxScanSSIDs:   4,
		EventQueueLen:  32,
		CommandBufSize: 512,
		ChannelMask:    ChannelMaskAll,
		Scan:           DefaultScanParams(),
	}
}

// ConnState is the state of an association or of the access point.
type ConnState uint8

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnFailed:
		return "failed"
	}
	return "connstate?"
}

// Role is the operating role of the radio.
type Role uint8

const (
	RoleNone Role = iota
	RoleSTA
	RoleAP
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleSTA:
		return "sta"
	case RoleAP:
		return "ap"
	}
	return "role?"
}

// Device is the driver context. Its zero value is not usable; create one
// with New.
type Device struct {
	mu            sync.Mutex
	open          bool
	tr            Transport
	pool          *pool.Pool
	sig           *queue.Signal
	outq          *queue.Queue
	inq           *queue.Queue
	cfg           Config
	logger        *slog.Logger
	_traceenabled bool
	diagLimit     *rate.Limiter
	diagnostics   uint64
	events        chan Event
	droppedEvents uint64
	chanMask      uint16
	reg           RegDomain
	regKnown      bool
	scanParams    ScanParams
	mac           [6]byte
	fwVersion     string
	sta           staLink
	ap            apState
	scan          scanCache
	ps            PowerSaveMode
	asleep        bool
	rcvEth        func([]byte) error
}

// New validates cfg and returns a closed Device.
func New(cfg Config) (*Device, error) {
	def := DefaultConfig()
	if cfg.Pool.ReservedCount == 0 && cfg.Pool.ReservedSize == 0 {
		cfg.Pool.ReservedCount = def.Pool.ReservedCount
		cfg.Pool.ReservedSize = def.Pool.ReservedSize
	}
	if cfg.Pool.Align == 0 {
		cfg.Pool.Align = def.Pool.Align
	}
	if cfg.Pool.Priorities < numPriorities {
		cfg.Pool.Priorities = numPriorities
	}
	if cfg.MaxAPPeers <= 0 {
		cfg.MaxAPPeers = def.MaxAPPeers
	}
	if cfg.MaxScanResults <= 0 {
		cfg.MaxScanResults = def.MaxScanResults
	}
	if cfg.MaxScanSSIDs <= 0 {
		cfg.MaxScanSSIDs = def.MaxScanSSIDs
	}
	if cfg.EventQueueLen <= 0 {
		cfg.EventQueueLen = def.EventQueueLen
	}
	if cfg.CommandBufSize <= 0 {
		cfg.CommandBufSize = def.CommandBufSize
	}
	if cfg.ChannelMask == 0 {
		cfg.ChannelMask = def.ChannelMask
	}
	if cfg.Scan == (ScanParams{}) {
		cfg.Scan = def.Scan
	}
	if cfg.MaxAPPeers > maxAssocSlots || cfg.MaxScanResults > 0xffff || cfg.CommandBufSize > pool.MaxSize {
		return nil, StatusInvalidArg
	}
	if err := checkChannelMask(cfg.ChannelMask); err != nil {
		return nil, err
	}
	if err := cfg.Scan.Validate(); err != nil {
		return nil, err
	}
	p, err := pool.New(cfg.Pool)
	if err != nil {
		return nil, errors.Join(StatusInvalidArg, err)
	}
	sig := queue.NewSignal()
	d := &Device{
		pool:       p,
		sig:        sig,
		outq:       queue.New(sig),
		inq:        queue.New(sig),
		cfg:        cfg,
		logger:     cfg.Logger,
		diagLimit:  rate.NewLimiter(rate.Every(time.Second), 5),
		chanMask:   cfg.ChannelMask,
		scanParams: cfg.Scan,
		reg:        RegDomain{ChannelMask: ChannelMaskAll},
	}
	d._traceenabled = d.logenabled(levelTrace)
	d.ap.peers = make([]assocRecord, cfg.MaxAPPeers)
	d.scan.entries = make([]bssEntry, cfg.MaxScanResults)
	return d, nil
}

// Open attaches the transport and starts a session. It queries the firmware
// for its MAC address, version and regulatory domain; the answers arrive
// through the consumer loop.
func (d *Device) Open(tr Transport) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return StatusRequestError
	}
	if tr == nil {
		return StatusInvalidArg
	}
	d.tr = tr
	d.open = true
	d.events = make(chan Event, d.cfg.EventQueueLen)
	d.droppedEvents = 0
	d.resetLinks()
	d.scan.reset()
	d.regKnown = false
	free := func(b *pool.Buffer) { d.pool.Free(b) }
	stale := d.outq.Drain(free) + d.inq.Drain(free)
	d.info("open", slog.Int("pool_align", d.cfg.Pool.Align), slog.Int("ap_slots", d.cfg.MaxAPPeers), slog.Int("stale", stale))
	err := d.sendQuery(wid.MACAddr, wid.FirmwareVer, wid.RegDomainInfo)
	if err != nil {
		d.open = false
		d.tr = nil
		close(d.events)
		return err
	}
	return nil
}

// Close ends the session. Queued commands and unprocessed responses are
// discarded, association state is reset without notification and the event
// channel is closed.
func (d *Device) Close() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return StatusNotOpen
	}
	d.open = false
	d.tr = nil
	close(d.events)
	d.resetLinks()
	d.scan.reset()
	d.asleep = false
	d.mu.Unlock()

	free := func(b *pool.Buffer) { d.pool.Free(b) }
	dropped := d.outq.Drain(free) + d.inq.Drain(free)
	d.sig.Set() // Wake Run so it observes the closed device.
	d.info("close", slog.Int("discarded", dropped))
	return nil
}

// IsOpen reports whether the device has an open session.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// PoolStats returns a snapshot of the buffer pool counters.
func (d *Device) PoolStats() PoolStats { return d.pool.Stats() }

// QueueDepth returns the number of buffers waiting in the outbound and
// inbound queues.
func (d *Device) QueueDepth() (outbound, inbound int) {
	return d.outq.Len(), d.inq.Len()
}

// FirmwareVersion returns the version string reported by the firmware, or
// StatusRetryRequest if it has not been received yet.
func (d *Device) FirmwareVersion() (string, error) {
	if err := d.acquire(); err != nil {
		return "", err
	}
	defer d.release()
	if d.fwVersion == "" {
		return "", StatusRetryRequest
	}
	return d.fwVersion, nil
}

// acquire locks the device and checks it is open. On error the lock is not
// held.
func (d *Device) acquire() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return StatusNotOpen
	}
	return nil
}

func (d *Device) release() {
	d.mu.Unlock()
}

// newCommand allocates a pool buffer and begins a message over it.
func (d *Device) newCommand() (*wid.Message, *pool.Buffer, error) {
	buf, err := d.pool.Alloc(d.cfg.CommandBufSize)
	if err != nil {
		d.warn("command alloc failed", slog.String("err", err.Error()))
		return nil, nil, StatusNoSpace
	}
	return wid.NewMessage(buf.Bytes()[:0]), buf, nil
}

// commit maps a builder error to a Status and queues the message. The buffer
// is always consumed.
func (d *Device) commit(m *wid.Message, buf *pool.Buffer) error {
	if err := m.Err(); err != nil {
		d.pool.Free(buf)
		if errors.Is(err, wid.ErrOverflow) {
			return StatusNoSpace
		}
		return StatusInvalidArg
	}
	return d.finalizeAndSend(m, buf)
}

// finalizeAndSend finalizes m and pushes buf to the outbound queue. Empty
// messages are released without being sent and reported as success. Errored
// messages are rejected by commit before reaching here.
func (d *Device) finalizeAndSend(m *wid.Message, buf *pool.Buffer) error {
	msg, err := m.Finalize()
	if err != nil {
		d.pool.Free(buf)
		if !errors.Is(err, wid.ErrNothingToSend) {
			d.logerr("discarding errored message", slog.String("err", err.Error()))
		}
		return nil
	}
	buf.Truncate(len(msg))
	d.traceMessage("tx", msg)
	d.outq.Push(buf)
	return nil
}

// sendQuery queues a query message for ids.
func (d *Device) sendQuery(ids ...wid.ID) error {
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	for _, id := range ids {
		m.AddQuery(id)
	}
	return d.commit(m, buf)
}

// sendValue queues a write message holding a single integer record.
func (d *Device) sendValue(id wid.ID, v uint32) error {
	m, buf, err := d.newCommand()
	if err != nil {
		return err
	}
	m.AddValue(id, v)
	return d.commit(m, buf)
}

// Interrupt signals the consumer loop that the transport has work pending.
// It is safe to call from any goroutine and never blocks.
func (d *Device) Interrupt() { d.sig.Set() }

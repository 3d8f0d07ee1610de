// Package netmon supplies connectivity status and offline→online transition
// notifications to the sync engine, polling a reachability target the way
// a field device must rather than trusting OS-reported link state alone.
// A context-cancelable background watcher notifies subscribers over a
// channel, the same shape as OS-signal handling generalized to network
// reachability polls.
package netmon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ConnType classifies the active network interface. Detection is
// best-effort: distinguishing wifi from cellular from userspace without
// platform-specific APIs is inherently a heuristic.
type ConnType string

// The four connection classes C6 reacts to.
const (
	ConnTypeWifi     ConnType = "wifi"
	ConnTypeCellular ConnType = "cellular"
	ConnTypeNone     ConnType = "none"
	ConnTypeUnknown  ConnType = "unknown"
)

// Status is the read-only connectivity snapshot exposed to callers.
type Status struct {
	Connected bool
	Type      ConnType
	Reachable *bool
}

// DefaultPollInterval is how often the monitor probes the reachability
// target.
const DefaultPollInterval = 1 * time.Second

// DefaultDebounce is how long a candidate state must persist before it is
// published as the new Status and, for offline→online, triggers a
// transition notification.
const DefaultDebounce = 2 * time.Second

// DefaultDialTimeout bounds each individual reachability probe.
const DefaultDialTimeout = 3 * time.Second

// Monitor polls a TCP endpoint to determine connectivity and debounces
// the result before publishing it.
type Monitor struct {
	target        string
	pollInterval  time.Duration
	debounce      time.Duration
	dialTimeout   time.Duration
	logger        *slog.Logger
	dial          func(ctx context.Context, network, address string) (net.Conn, error)
	interfaceType func() ConnType

	mu      sync.RWMutex
	current Status

	onlineTransitions chan struct{}
}

// New constructs a Monitor that probes target (host:port) to determine
// reachability.
func New(target string, logger *slog.Logger) *Monitor {
	dialer := &net.Dialer{}

	return &Monitor{
		target:            target,
		pollInterval:      DefaultPollInterval,
		debounce:          DefaultDebounce,
		dialTimeout:       DefaultDialTimeout,
		logger:            logger,
		dial:              dialer.DialContext,
		interfaceType:     detectInterfaceType,
		current:           Status{Connected: false, Type: ConnTypeNone},
		onlineTransitions: make(chan struct{}, 1),
	}
}

// Status returns the most recently published connectivity snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// OnlineTransitions returns a channel that receives a value each time the
// monitor observes a debounced offline→online transition. The channel is
// buffered by one; a pending notification is never lost, but bursts
// collapse into a single wakeup, matching C6's "single opportunistic
// upload_pending() call" requirement.
func (m *Monitor) OnlineTransitions() <-chan struct{} {
	return m.onlineTransitions
}

// Run polls until ctx is canceled. It is meant to be started in its own
// goroutine by the caller.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var (
		candidate      Status
		candidateSince time.Time
		havePublished  bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observed := m.probe(ctx)

			if !havePublished || observed.Connected != candidate.Connected || observed.Type != candidate.Type {
				candidate = observed
				candidateSince = time.Now()
				havePublished = true
			}

			if time.Since(candidateSince) >= m.debounce {
				m.publish(candidate)
			}
		}
	}
}

func (m *Monitor) publish(next Status) {
	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	if !prev.Connected && next.Connected {
		m.logger.Info("network online transition detected", "type", next.Type)

		select {
		case m.onlineTransitions <- struct{}{}:
		default:
		}
	} else if prev.Connected && !next.Connected {
		m.logger.Info("network offline transition detected")
	}
}

func (m *Monitor) probe(ctx context.Context) Status {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	conn, err := m.dial(dialCtx, "tcp", m.target)
	if err != nil {
		reachable := false
		return Status{Connected: false, Type: ConnTypeNone, Reachable: &reachable}
	}

	_ = conn.Close()

	reachable := true

	return Status{Connected: true, Type: m.interfaceType(), Reachable: &reachable}
}

// detectInterfaceType makes a best-effort guess at the active connection
// class by scanning interface names for common platform conventions. It
// never errors; an inconclusive scan reports ConnTypeUnknown.
func detectInterfaceType() ConnType {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ConnTypeUnknown
	}

	sawUp := false

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		sawUp = true

		switch classifyInterfaceName(iface.Name) {
		case ConnTypeWifi:
			return ConnTypeWifi
		case ConnTypeCellular:
			return ConnTypeCellular
		}
	}

	if sawUp {
		return ConnTypeUnknown
	}

	return ConnTypeNone
}

func classifyInterfaceName(name string) ConnType {
	switch {
	case hasAnyPrefix(name, "wlan", "wl", "wifi", "en0"):
		return ConnTypeWifi
	case hasAnyPrefix(name, "wwan", "ppp", "rmnet", "pdp"):
		return ConnTypeCellular
	default:
		return ConnTypeUnknown
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}

	return false
}

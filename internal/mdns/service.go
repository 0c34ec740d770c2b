// Package mdns advertises the server on the local network through the Avahi
// daemon, so desktop clients discover it without typing an address.
package mdns

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"

	"github.com/aloudapp/aloud-server/internal/logger"
)

// ServiceType is the DNS-SD service type clients browse for.
const ServiceType = "_aloud._tcp"

// Advertiser publishes one service entry via Avahi over the system bus.
// Machines without a reachable Avahi daemon (containers, non-Linux hosts)
// make Start fail; callers treat that as a log-and-continue condition, not
// a startup error.
type Advertiser struct {
	log *logger.Logger

	mu     sync.Mutex
	server *avahi.Server
	group  *avahi.EntryGroup
}

// New creates an advertiser. Nothing touches the bus until Start.
func New(log *logger.Logger) *Advertiser {
	return &Advertiser{log: log}
}

// Start registers the service entry under the given instance name. Calling
// Start on a running advertiser replaces the entry, so a changed port or
// name re-announces cleanly.
func (a *Advertiser) Start(name string, port int, txt map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()

	// The system bus connection is the process-wide shared one; Avahi
	// signal traffic rides on it and it is never closed here.
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		return fmt.Errorf("connect avahi daemon: %w", err)
	}

	group, err := server.EntryGroupNew()
	if err != nil {
		server.Close()
		return fmt.Errorf("create entry group: %w", err)
	}

	err = group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		name,
		ServiceType,
		"", // default domain, .local
		"", // default host
		uint16(port),
		encodeTXT(txt),
	)
	if err != nil {
		server.Close()
		return fmt.Errorf("add service entry: %w", err)
	}

	if err := group.Commit(); err != nil {
		server.Close()
		return fmt.Errorf("commit entry group: %w", err)
	}

	a.server = server
	a.group = group
	a.log.Info("mdns advertisement started",
		"service", ServiceType,
		"name", name,
		"port", port,
	)
	return nil
}

// Stop withdraws the advertisement. Safe before Start and safe to repeat.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.stopLocked()
		a.log.Info("mdns advertisement stopped")
	}
}

func (a *Advertiser) stopLocked() {
	if a.server == nil {
		return
	}
	a.server.EntryGroupFree(a.group)
	a.server.Close()
	a.server = nil
	a.group = nil
}

// encodeTXT renders key=value pairs in sorted order, the wire form Avahi
// expects for TXT data.
func encodeTXT(txt map[string]string) [][]byte {
	keys := slices.Sorted(maps.Keys(txt))
	records := make([][]byte, 0, len(keys))
	for _, k := range keys {
		records = append(records, fmt.Appendf(nil, "%s=%s", k, txt[k]))
	}
	return records
}

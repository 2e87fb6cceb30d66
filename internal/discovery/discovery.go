// Package discovery implements the Discovery Service (spec.md §5, §6): a
// registry of externally-known agent endpoints plus a live TCP port scan,
// guarded by a single reader-writer lock per spec.md §5's "Lifecycle
// Manager, Channel Store, Swarm Coordinator, Discovery Service, and Audit
// Sink are each protected by a single reader-writer lock" rule.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Method names how an endpoint was found.
type Method string

const (
	MethodManual      Method = "manual"
	MethodNetworkScan Method = "network_scan"
	MethodDNSSD       Method = "dns_sd"
)

// dialTimeout bounds each probe in ScanPorts, grounded on the teacher's own
// readiness-probe dial in apps/backend's process/vscode.go
// (net.DialTimeout("tcp", addr, 500*time.Millisecond)).
const dialTimeout = 500 * time.Millisecond

// Endpoint is one discovered or manually-registered agent endpoint.
type Endpoint struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Method      Method `json:"method"`
	RuntimeHint string `json:"runtime_hint,omitempty"`
}

func key(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Service is the concurrency-safe Discovery Service.
type Service struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// New creates an empty Service.
func New() *Service {
	return &Service{endpoints: make(map[string]Endpoint)}
}

// RegisterEndpoint records e under its host:port key, replacing any prior
// entry at that key, and returns the key.
func (s *Service) RegisterEndpoint(e Endpoint) string {
	k := key(e.Host, e.Port)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[k] = e
	return k
}

// ListEndpoints returns every registered endpoint, sorted by key for
// deterministic output.
func (s *Service) ListEndpoints() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.endpoints))
	for k := range s.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Endpoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.endpoints[k])
	}
	return out
}

// ScanPorts probes every (host, port) pair in the cross product with a
// bounded-timeout TCP dial and returns the pairs that accepted a connection,
// tagged MethodNetworkScan. It is a read-only probe of the network, not of
// the registered-endpoints table — a caller wanting the scan results kept
// must explicitly RegisterEndpoint them, mirroring the two-step
// scan-then-register flow in spec.md §6's discovery endpoint pair.
func (s *Service) ScanPorts(ctx context.Context, hosts []string, ports []int) []Endpoint {
	type probe struct {
		host string
		port int
	}
	probes := make([]probe, 0, len(hosts)*len(ports))
	for _, h := range hosts {
		for _, p := range ports {
			probes = append(probes, probe{host: h, port: p})
		}
	}

	var (
		mu    sync.Mutex
		found []Endpoint
		wg    sync.WaitGroup
	)
	dialer := net.Dialer{Timeout: dialTimeout}
	for _, pr := range probes {
		wg.Add(1)
		go func(pr probe) {
			defer wg.Done()
			conn, err := dialer.DialContext(ctx, "tcp", key(pr.host, pr.port))
			if err != nil {
				return
			}
			conn.Close()
			mu.Lock()
			found = append(found, Endpoint{Host: pr.host, Port: pr.port, Method: MethodNetworkScan})
			mu.Unlock()
		}(pr)
	}
	wg.Wait()

	sort.Slice(found, func(i, j int) bool {
		return fmt.Sprintf("%s:%d", found[i].Host, found[i].Port) < fmt.Sprintf("%s:%d", found[j].Host, found[j].Port)
	})
	return found
}

package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndListEndpoints(t *testing.T) {
	s := New()

	k1 := s.RegisterEndpoint(Endpoint{Host: "10.0.0.2", Port: 9000, Method: MethodManual, RuntimeHint: "zero-claw"})
	k2 := s.RegisterEndpoint(Endpoint{Host: "10.0.0.1", Port: 9100, Method: MethodDNSSD})
	assert.NotEqual(t, k1, k2)

	endpoints := s.ListEndpoints()
	require.Len(t, endpoints, 2)
	assert.Equal(t, "10.0.0.1", endpoints[0].Host)
	assert.Equal(t, "10.0.0.2", endpoints[1].Host)
}

func TestRegisterEndpointReplacesSameKey(t *testing.T) {
	s := New()
	s.RegisterEndpoint(Endpoint{Host: "localhost", Port: 9000, Method: MethodManual, RuntimeHint: "zero-claw"})
	s.RegisterEndpoint(Endpoint{Host: "localhost", Port: 9000, Method: MethodManual, RuntimeHint: "mimi-claw"})

	endpoints := s.ListEndpoints()
	require.Len(t, endpoints, 1)
	assert.Equal(t, "mimi-claw", endpoints[0].RuntimeHint)
}

func TestScanPortsFindsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	found := s.ScanPorts(ctx, []string{"127.0.0.1"}, []int{addr.Port, addr.Port + 1})
	require.Len(t, found, 1)
	assert.Equal(t, addr.Port, found[0].Port)
	assert.Equal(t, MethodNetworkScan, found[0].Method)

	assert.Empty(t, s.ListEndpoints(), "ScanPorts must not mutate the registered-endpoints table")
}

package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePeer echoes back a canned response for every request it reads,
// standing in for a real MimiClaw subprocess.
func pipePeer(t *testing.T, clientWrites io.Reader, clientReads io.Writer, respond func(Request) Response) {
	t.Helper()
	go func() {
		scanner := bufio.NewScanner(clientWrites)
		for scanner.Scan() {
			var req Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			resp := respond(req)
			data, _ := json.Marshal(resp)
			clientReads.Write(append(data, '\n'))
		}
	}()
}

func TestCallRoundTrip(t *testing.T) {
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	pipePeer(t, serverIn, serverOut, func(req Request) Response {
		result, _ := json.Marshal(map[string]string{"echo": req.Method})
		return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
	})

	c := NewClient(context.Background(), clientOut, clientIn)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.Call(ctx, "chat.send", map[string]string{"content": "hi"})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, "chat.send", decoded["echo"])
}

func TestCallReturnsRPCError(t *testing.T) {
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	pipePeer(t, serverIn, serverOut, func(req Request) Response {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: -32601, Message: "method not found"}}
	})

	c := NewClient(context.Background(), clientOut, clientIn)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Call(ctx, "bogus", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestCallContextCancellation(t *testing.T) {
	clientIn, _ := io.Pipe()
	_, clientOut := io.Pipe()

	c := NewClient(context.Background(), clientOut, clientIn)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, "never.responds", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

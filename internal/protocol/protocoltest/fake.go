// Package protocoltest provides a scripted in-memory Transport for tests.
package protocoltest

import (
	"context"
	"sync"
	"time"

	"shutter-service/internal/protocol"
	"shutter-service/pkg/devicetypes"
)

// Step is one scripted ReadChunk outcome
type Step struct {
	Data []byte
	Err  error
}

// Chunk returns a step delivering s
func Chunk(s string) Step {
	return Step{Data: []byte(s)}
}

// Timeout returns a step delivering nothing
func Timeout() Step {
	return Step{Data: []byte{}}
}

// Failure returns a step reporting a failed bulk read
func Failure() Step {
	return Step{Err: protocol.ErrReadFailed}
}

// Fatal returns a step reporting an unrecoverable error
func Fatal(err error) Step {
	return Step{Err: err}
}

// FakeTransport serves scripted reads. When the script is exhausted ReadChunk
// waits for its timeout and returns no data.
type FakeTransport struct {
	mu        sync.Mutex
	script    []Step
	connected bool
	identity  devicetypes.Identity
	commands  []protocol.Command
	connects  int
	reads     int
	queued    chan struct{}

	// ConnectErr is returned by Connect when set
	ConnectErr error
	// SendErr is returned by SendCommand when set
	SendErr error
}

// NewFakeTransport creates a disconnected fake serving steps
func NewFakeTransport(steps ...Step) *FakeTransport {
	return &FakeTransport{
		script: append([]Step(nil), steps...),
		queued: make(chan struct{}, 1),
	}
}

// Queue appends steps to the script
func (f *FakeTransport) Queue(steps ...Step) {
	f.mu.Lock()
	f.script = append(f.script, steps...)
	f.mu.Unlock()

	select {
	case f.queued <- struct{}{}:
	default:
	}
}

func (f *FakeTransport) Connect(ctx context.Context, identity devicetypes.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	f.identity = identity
	return nil
}

func (f *FakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.identity = devicetypes.Identity{}
}

func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil, protocol.ErrNotConnected
	}
	f.reads++
	if len(f.script) > 0 {
		step := f.script[0]
		f.script = f.script[1:]
		f.mu.Unlock()
		if step.Err != nil {
			return nil, step.Err
		}
		return step.Data, nil
	}
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.queued:
		return []byte{}, nil
	case <-timer.C:
		return []byte{}, nil
	}
}

func (f *FakeTransport) SendCommand(ctx context.Context, command protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return &protocol.TransferError{Kind: protocol.NoOutEndpoint, Command: command}
	}
	if f.SendErr != nil {
		return &protocol.TransferError{Kind: protocol.WriteFailed, Command: command, Err: f.SendErr}
	}
	f.commands = append(f.commands, command)
	return nil
}

func (f *FakeTransport) Backend() string {
	return "fake"
}

func (f *FakeTransport) Stats() protocol.TransportStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return protocol.TransportStats{
		ReadCount:   int64(f.reads),
		IsConnected: f.connected,
		Device:      f.identity.Name,
	}
}

// Commands returns the commands sent so far
func (f *FakeTransport) Commands() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command(nil), f.commands...)
}

// Connects returns how many times Connect was called
func (f *FakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Reads returns how many reads were served while connected
func (f *FakeTransport) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Identity returns the identity of the last successful Connect
func (f *FakeTransport) Identity() devicetypes.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

// Pending returns how many scripted steps remain
func (f *FakeTransport) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.script)
}

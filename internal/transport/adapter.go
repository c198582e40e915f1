package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/streaming"
)

// SessionEngine is the slice of the session registry that adapters drive.
type SessionEngine interface {
	Connect(ctx context.Context, kind entities.TransportKind, opts streaming.ConnectOptions) (*entities.Session, error)
	Receive(connectionID string, frame []byte) error
	Disconnect(connectionID string) (*entities.FinalResult, error)
}

// ProviderAdapter normalizes one transport mechanism onto the session
// engine. An adapter owns the provider-facing I/O for its connections and
// translates between wire frames and engine calls; the engine never sees
// raw connections.
type ProviderAdapter interface {
	// Kind identifies the transport this adapter serves.
	Kind() entities.TransportKind

	// Accept takes over a newly established raw connection. The concrete
	// type of raw is adapter-specific; an adapter rejects types it does
	// not understand. It returns the engine connection id once the
	// handshake binds the connection to a call session.
	Accept(ctx context.Context, raw any) (string, error)

	// Terminate finalizes the adapter's connection from the engine side,
	// for example when the idle reaper evicts it.
	Terminate(connectionID string) error
}

// Factory resolves provider adapters by transport kind. Adapters register
// themselves at wiring time; lookup never falls through to a default.
type Factory struct {
	mu       sync.RWMutex
	adapters map[entities.TransportKind]ProviderAdapter
}

func NewFactory() *Factory {
	return &Factory{adapters: map[entities.TransportKind]ProviderAdapter{}}
}

// Register adds an adapter. Registering the same kind twice is a wiring bug
// and returns an error rather than silently replacing the first.
func (f *Factory) Register(adapter ProviderAdapter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind := adapter.Kind()
	if _, exists := f.adapters[kind]; exists {
		return fmt.Errorf("adapter already registered for transport %q", kind)
	}
	f.adapters[kind] = adapter
	return nil
}

// Get returns the adapter for the given transport kind.
func (f *Factory) Get(kind entities.TransportKind) (ProviderAdapter, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	adapter, ok := f.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for transport %q", kind)
	}
	return adapter, nil
}

// Kinds lists the registered transport kinds.
func (f *Factory) Kinds() []entities.TransportKind {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]entities.TransportKind, 0, len(f.adapters))
	for kind := range f.adapters {
		kinds = append(kinds, kind)
	}
	return kinds
}

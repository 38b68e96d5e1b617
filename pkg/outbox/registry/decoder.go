package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// ErrNoDecoder means the event type or schema version is unknown here.
var ErrNoDecoder = errors.New("no decoder")

type Decoder func(json.RawMessage) (any, error)

type versioned struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry lets consumers decode envelope data per schema version.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[versioned]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[versioned]Decoder{}}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[versioned{eventType, version}] = decode
}

// PayloadDecoders holds the v1 decoder of every catalog event.
func PayloadDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for eventType, spec := range catalog {
		reg.Register(eventType, 1, spec.decode)
	}
	return reg
}

// Decode treats version 0, written before envelopes were versioned, as v1.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	version = max(version, 1)
	r.mu.RLock()
	decode, ok := r.decoders[versioned{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	return decode(data)
}

package pool

import (
	"sync"

	"github.com/pzverkov/e2ee-media/pkg/frame"
)

// OutboundProcessorPool is a freelist of frame.OutboundFrameProcessor
// instances. An Encryptor pulls one per frame instead of allocating a fresh
// processor (and its backing slices) on every call.
type OutboundProcessorPool struct {
	mu   sync.Mutex
	free []*frame.OutboundFrameProcessor
}

// NewOutboundProcessorPool returns an empty pool; processors are allocated
// lazily on first Get.
func NewOutboundProcessorPool() *OutboundProcessorPool {
	return &OutboundProcessorPool{}
}

// Get returns a reset processor from the freelist, allocating a new one if
// the freelist is empty.
func (p *OutboundProcessorPool) Get() *frame.OutboundFrameProcessor {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return &frame.OutboundFrameProcessor{}
	}
	fp := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	fp.Reset()
	return fp
}

// Put returns fp to the freelist for reuse.
func (p *OutboundProcessorPool) Put(fp *frame.OutboundFrameProcessor) {
	if fp == nil {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, fp)
	p.mu.Unlock()
}

// InboundProcessorPool is the analogous freelist for
// frame.InboundFrameProcessor, used by a Decryptor.
type InboundProcessorPool struct {
	mu   sync.Mutex
	free []*frame.InboundFrameProcessor
}

// NewInboundProcessorPool returns an empty pool.
func NewInboundProcessorPool() *InboundProcessorPool {
	return &InboundProcessorPool{}
}

// Get returns a cleared processor from the freelist, allocating a new one
// if the freelist is empty.
func (p *InboundProcessorPool) Get() *frame.InboundFrameProcessor {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return &frame.InboundFrameProcessor{}
	}
	fp := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	fp.Clear()
	return fp
}

// Put returns fp to the freelist for reuse.
func (p *InboundProcessorPool) Put(fp *frame.InboundFrameProcessor) {
	if fp == nil {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, fp)
	p.mu.Unlock()
}

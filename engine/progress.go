package engine

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrExportCancelled is returned by a render whose Progress was cancelled.
var ErrExportCancelled = errors.New("export cancelled")

// Progress is a pollable progress tracker for offline rendering and export.
// The rendering goroutine updates it; any other goroutine may poll it or
// request cancellation.
type Progress struct {
	percent   atomic.Uint32
	running   atomic.Bool
	cancelled atomic.Bool

	mu     sync.Mutex
	status string
	err    error
}

func NewProgress() *Progress { return &Progress{} }

// Start resets the tracker and marks the operation running.
func (p *Progress) Start(status string) {
	p.percent.Store(0)
	p.running.Store(true)
	p.cancelled.Store(false)
	p.mu.Lock()
	p.status = status
	p.err = nil
	p.mu.Unlock()
}

// Update sets the completed percentage (clamped to 100) and status message.
func (p *Progress) Update(percent int, status string) {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	p.percent.Store(uint32(percent))
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

// Complete marks the operation finished successfully.
func (p *Progress) Complete() {
	p.percent.Store(100)
	p.running.Store(false)
	p.mu.Lock()
	p.status = "complete"
	p.mu.Unlock()
}

// Fail marks the operation failed with the given error.
func (p *Progress) Fail(err error) {
	p.running.Store(false)
	p.mu.Lock()
	p.err = err
	p.status = "failed"
	p.mu.Unlock()
}

// Cancel requests cancellation; the renderer checks it between chunks.
func (p *Progress) Cancel() { p.cancelled.Store(true) }

func (p *Progress) Cancelled() bool { return p.cancelled.Load() }
func (p *Progress) Running() bool   { return p.running.Load() }
func (p *Progress) Percent() int    { return int(p.percent.Load()) }

func (p *Progress) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Progress) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

package estimate

import (
	"sync"

	"github.com/rs/zerolog"

	mocap "github.com/mvlab/go-mocap"
)

// Pool is a simple detector pool to open multiple instances of the same
// model so camera views can be processed in parallel
type Pool struct {
	// pool of detectors
	detectors chan *PoseDetector
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a new detector pool
func NewPool(size int, cfg DetectorConfig, conv mocap.Convention,
	log zerolog.Logger) (*Pool, error) {

	p := &Pool{
		detectors: make(chan *PoseDetector, size),
		size:      size,
	}

	for i := 0; i < size; i++ {
		det, err := NewPoseDetector(cfg, conv, log)

		if err != nil {
			// close any instances that may have been created before
			// receiving the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(det)
	}

	return p, nil
}

// Get a detector from the pool, blocks until one is available
func (p *Pool) Get() *PoseDetector {
	return <-p.detectors
}

// Return a detector to the pool
func (p *Pool) Return(det *PoseDetector) {
	select {
	case p.detectors <- det:
	default:
		// pool is full or closed
	}
}

// Close the pool and all detectors in it
func (p *Pool) Close() {
	p.close.Do(func() {
		// close channel
		close(p.detectors)

		// close all detectors
		for next := range p.detectors {
			_ = next.Close()
		}
	})
}

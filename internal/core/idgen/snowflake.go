// Package idgen issues time-ordered 64-bit identifiers in the snowflake
// layout: 41 bits of milliseconds since the epoch, 5 bits datacenter,
// 5 bits worker, 12 bits sequence.
package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/catalog-service/internal/core/domain"
)

const (
	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	MaxNodeID    = 1<<workerIDBits - 1
	sequenceMask = 1<<sequenceBits - 1

	workerIDShift     = sequenceBits
	datacenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + datacenterIDBits
)

// DefaultEpoch is 2010-11-04T01:42:54.657Z.
var DefaultEpoch = time.UnixMilli(1288834974657)

var ErrInvalidNodeID = errors.New("node id out of range")

type Config struct {
	DatacenterID int64
	WorkerID     int64
	// Epoch defaults to DefaultEpoch.
	Epoch time.Time
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Generator struct {
	datacenterID int64
	workerID     int64
	epochMs      int64
	clock        func() time.Time

	mu            sync.Mutex
	lastTimestamp int64
	sequence      int64
}

// Parts is a decoded identifier.
type Parts struct {
	Time         time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

func New(cfg Config) (*Generator, error) {
	if cfg.DatacenterID < 0 || cfg.DatacenterID > MaxNodeID {
		return nil, fmt.Errorf("datacenter id %d not in [0,%d]: %w", cfg.DatacenterID, MaxNodeID, ErrInvalidNodeID)
	}
	if cfg.WorkerID < 0 || cfg.WorkerID > MaxNodeID {
		return nil, fmt.Errorf("worker id %d not in [0,%d]: %w", cfg.WorkerID, MaxNodeID, ErrInvalidNodeID)
	}

	epoch := cfg.Epoch
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Generator{
		datacenterID:  cfg.DatacenterID,
		workerID:      cfg.WorkerID,
		epochMs:       epoch.UnixMilli(),
		clock:         clock,
		lastTimestamp: -1,
	}, nil
}

// NextID returns the next identifier. It spins until the next millisecond
// when the sequence is exhausted, and refuses to issue anything once the
// clock is seen behind the last issued timestamp.
func (g *Generator) NextID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTimestamp {
		return 0, fmt.Errorf("refusing to generate id for %dms: %w", g.lastTimestamp-ts, domain.ErrClockRegression)
	}
	if ts < 0 {
		return 0, fmt.Errorf("clock is before epoch: %w", domain.ErrClockRegression)
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ts = g.waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	id := ts<<timestampShift |
		g.datacenterID<<datacenterIDShift |
		g.workerID<<workerIDShift |
		g.sequence
	return uint64(id), nil
}

// Decompose splits id back into its fields using this generator's epoch.
func (g *Generator) Decompose(id uint64) Parts {
	v := int64(id)
	return Parts{
		Time:         time.UnixMilli(v>>timestampShift + g.epochMs),
		DatacenterID: v >> datacenterIDShift & MaxNodeID,
		WorkerID:     v >> workerIDShift & MaxNodeID,
		Sequence:     v & sequenceMask,
	}
}

func (g *Generator) waitNextMillis(last int64) int64 {
	ts := g.now()
	for ts <= last {
		ts = g.now()
	}
	return ts
}

func (g *Generator) now() int64 {
	return g.clock().UnixMilli() - g.epochMs
}

package mover

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// SimulatorConfig tunes the simulated backend.
type SimulatorConfig struct {
	SuccessRate float64       `yaml:"success_rate"` // 0..1, default 0.9
	MinDelay    time.Duration `yaml:"min_delay"`    // default 2s
	MaxDelay    time.Duration `yaml:"max_delay"`    // default 6s
	Seed        uint64        `yaml:"seed"`         // 0 picks a random seed
}

// Simulator stands in for a real mailbox system. Lookups are deterministic
// per address; moves take a random amount of time and fail at random.
type Simulator struct {
	cfg SimulatorConfig

	mu  sync.Mutex
	rng *rand.Rand
}

var simulatedFailures = []string{
	"The mailbox is locked by another move request",
	"Target mailbox quota exceeded",
	"Transient failure communicating with the source server",
	"Corrupted items exceeded the bad item limit",
}

// NewSimulator creates a Simulator, filling unset fields with defaults.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = 0.9
	}
	if cfg.MinDelay == 0 && cfg.MaxDelay == 0 {
		cfg.MinDelay = 2 * time.Second
		cfg.MaxDelay = 6 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// checksum is the byte sum of the normalised address.
func checksum(identity string) int {
	sum := 0
	for _, b := range []byte(strings.ToLower(strings.TrimSpace(identity))) {
		sum += int(b)
	}
	return sum
}

// Lookup derives existence and size from the address checksum: one address
// in ten does not exist, and sizes spread over 0..15 000 MB.
func (s *Simulator) Lookup(ctx context.Context, identity string) (MailboxInfo, error) {
	if err := ctx.Err(); err != nil {
		return MailboxInfo{}, err
	}
	sum := checksum(identity)
	if sum%10 == 0 {
		return MailboxInfo{Exists: false}, nil
	}
	size := float64((sum*7919)%15000) + float64(sum%100)/100
	return MailboxInfo{Exists: true, SizeMB: size}, nil
}

func (s *Simulator) Move(ctx context.Context, source, target string) (MoveResult, error) {
	s.mu.Lock()
	delay := s.cfg.MinDelay
	if span := s.cfg.MaxDelay - s.cfg.MinDelay; span > 0 {
		delay += time.Duration(s.rng.Int64N(int64(span)))
	}
	ok := s.rng.Float64() < s.cfg.SuccessRate
	items := 100 + s.rng.IntN(4900)
	bytesPerItem := int64(20_000 + s.rng.IntN(180_000))
	failure := simulatedFailures[s.rng.IntN(len(simulatedFailures))]
	s.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return MoveResult{}, err
	}
	if !ok {
		return MoveResult{}, fmt.Errorf("move %s -> %s: %s", source, target, failure)
	}
	return MoveResult{ItemsMoved: items, BytesMoved: int64(items) * bytesPerItem}, nil
}

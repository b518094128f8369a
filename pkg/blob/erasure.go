package blob

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

const (
	// DataShards is the number of data shards (10)
	DataShards = 10
	// ParityShards is the number of parity shards (5)
	ParityShards = 5
	// TotalShards is the total number of shards (15)
	TotalShards = DataShards + ParityShards
	// MinShardsForRecovery is the minimum number of shards needed to reconstruct data
	MinShardsForRecovery = DataShards
)

var ErrInsufficientShards = errors.New("insufficient shards for recovery")

// Health describes how much redundancy a stored blob has left
type Health string

const (
	HealthExcellent Health = "excellent" // 15/15
	HealthGood      Health = "good"      // 13-14/15
	HealthDegraded  Health = "degraded"  // 11-12/15, repair
	HealthCritical  Health = "critical"  // 10/15, repair now
	HealthLost      Health = "lost"      // unrecoverable
)

// HealthFor classifies the number of available shards
func HealthFor(available int) Health {
	switch {
	case available >= TotalShards:
		return HealthExcellent
	case available >= 13:
		return HealthGood
	case available >= 11:
		return HealthDegraded
	case available >= MinShardsForRecovery:
		return HealthCritical
	default:
		return HealthLost
	}
}

// NeedsRepair reports whether shards should be rebuilt
func (h Health) NeedsRepair() bool {
	return h == HealthDegraded || h == HealthCritical
}

// ErasureEncoder handles erasure coding of blobs
type ErasureEncoder struct {
	encoder reedsolomon.Encoder
}

// EncodedData represents a blob split into shards
type EncodedData struct {
	Shards       [][]byte // All 15 shards (10 data + 5 parity), nil when missing
	ShardSize    int
	OriginalSize int
}

// Available counts the shards present
func (d *EncodedData) Available() int {
	n := 0
	for _, shard := range d.Shards {
		if shard != nil {
			n++
		}
	}
	return n
}

// NewErasureEncoder creates a new erasure encoder
func NewErasureEncoder() (*ErasureEncoder, error) {
	enc, err := reedsolomon.New(DataShards, ParityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to create Reed-Solomon encoder: %w", err)
	}

	return &ErasureEncoder{encoder: enc}, nil
}

// Encode splits data into 15 shards, any 10 of which reconstruct it
func (e *ErasureEncoder) Encode(data []byte) (*EncodedData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot encode empty data")
	}

	shards, err := e.encoder.Split(data)
	if err != nil {
		return nil, fmt.Errorf("failed to split data: %w", err)
	}

	if err := e.encoder.Encode(shards); err != nil {
		return nil, fmt.Errorf("failed to encode parity: %w", err)
	}

	return &EncodedData{
		Shards:       shards,
		ShardSize:    len(shards[0]),
		OriginalSize: len(data),
	}, nil
}

// Reconstruct fills in missing shards in place
func (e *ErasureEncoder) Reconstruct(encoded *EncodedData) error {
	if len(encoded.Shards) != TotalShards {
		return fmt.Errorf("invalid number of shards: expected %d, got %d", TotalShards, len(encoded.Shards))
	}
	if have := encoded.Available(); have < MinShardsForRecovery {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientShards, have, MinShardsForRecovery)
	}

	if err := e.encoder.Reconstruct(encoded.Shards); err != nil {
		return fmt.Errorf("failed to reconstruct shards: %w", err)
	}

	ok, err := e.encoder.Verify(encoded.Shards)
	if err != nil {
		return fmt.Errorf("failed to verify shards: %w", err)
	}
	if !ok {
		return fmt.Errorf("shard verification failed")
	}
	return nil
}

// Decode reconstructs the blob from at least 10 of its 15 shards
func (e *ErasureEncoder) Decode(encoded *EncodedData) ([]byte, error) {
	if encoded == nil {
		return nil, fmt.Errorf("encoded data is nil")
	}

	// Reconstruct on a copy so the caller's shards stay untouched
	work := &EncodedData{
		Shards:       make([][]byte, len(encoded.Shards)),
		ShardSize:    encoded.ShardSize,
		OriginalSize: encoded.OriginalSize,
	}
	copy(work.Shards, encoded.Shards)

	if err := e.Reconstruct(work); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, encoded.OriginalSize)
	for i := 0; i < DataShards; i++ {
		buf = append(buf, work.Shards[i]...)
	}

	// Trim padding
	if len(buf) > encoded.OriginalSize {
		buf = buf[:encoded.OriginalSize]
	}
	return buf, nil
}

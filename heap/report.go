package heap

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode uses canonical options for deterministic encoding, so
// two reports with the same contents encode to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("heap: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CollectorReport summarizes one stress or soak run of the engine:
// how much work the mutators submitted, what the collector reclaimed,
// and the pause times observed while doing it.
type CollectorReport struct {
	RunID       string        `cbor:"run_id"`
	StartedAt   time.Time     `cbor:"started_at"`
	Duration    time.Duration `cbor:"duration"`
	Mutators    int           `cbor:"mutators"`
	Submitted   uint64        `cbor:"submitted"`
	Reclaimed   uint64        `cbor:"reclaimed"`
	Sweeps      uint64        `cbor:"sweeps"`
	LastPause   time.Duration `cbor:"last_pause"`
	MaxPause    time.Duration `cbor:"max_pause"`
	FinalEpoch  uint64        `cbor:"final_epoch"`
	LeakedCount int           `cbor:"leaked_count"`
}

// NewCollectorReport returns a report with a fresh run ID and start
// timestamp; the caller fills in the outcome fields.
func NewCollectorReport(mutators int) *CollectorReport {
	return &CollectorReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Mutators:  mutators,
	}
}

// MarshalReport serializes a CollectorReport to canonical CBOR bytes.
func MarshalReport(r *CollectorReport) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a CollectorReport from CBOR bytes.
func UnmarshalReport(data []byte) (*CollectorReport, error) {
	var r CollectorReport
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("heap: unmarshal report: %w", err)
	}
	return &r, nil
}

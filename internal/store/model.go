package store

import (
	"time"

	"lobsim/internal/engine"
	"lobsim/internal/schema"
	"lobsim/internal/state"
)

// RunRecord is one finished simulation run.
type RunRecord struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	ConfigPath  string
	InputPath   string
	Seed        uint64
	VenueMode   string
	Strategy    string
	Inputs      uint64
	Ticks       uint64
	LastSeq     uint64
	LastEventTs int64
	Orders      int
	OpenOrders  int
	Fills       uint64
	Realized    int64
	Fees        int64
	Halted      bool
	Digest      string `gorm:"index;size:64"`
	StartedAt   time.Time
	FinishedAt  time.Time
	CreatedAt   time.Time

	Positions []PositionRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (RunRecord) TableName() string { return "sim_runs" }

// PositionRecord is the final position of one symbol in a run.
// The Display columns render ticks and lots with the instrument scales.
type PositionRecord struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    string `gorm:"index;type:uuid"`
	Symbol   string `gorm:"size:32"`
	Qty      int64
	Cost     int64
	Realized int64
	Fees     int64
	Volume   int64
	Fills    uint64

	QtyDisplay      string
	AvgEntryDisplay string
}

func (PositionRecord) TableName() string { return "sim_run_positions" }

// Run describes a run to persist.
type Run struct {
	ID         string
	ConfigPath string
	InputPath  string
	Seed       uint64
	VenueMode  string
	Strategy   string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    engine.Summary
}

func newRunRecord(run Run, reg *schema.Registry) RunRecord {
	s := run.Summary
	rec := RunRecord{
		ID:          run.ID,
		ConfigPath:  run.ConfigPath,
		InputPath:   run.InputPath,
		Seed:        run.Seed,
		VenueMode:   run.VenueMode,
		Strategy:    run.Strategy,
		Inputs:      s.Inputs,
		Ticks:       s.Ticks,
		LastSeq:     s.LastSeq,
		LastEventTs: s.LastEventTs,
		Orders:      s.Orders,
		OpenOrders:  s.OpenOrders,
		Fills:       s.Fills,
		Realized:    int64(s.Realized),
		Fees:        int64(s.Fees),
		Halted:      s.Halted,
		Digest:      s.Digest,
		StartedAt:   run.StartedAt.UTC(),
		FinishedAt:  run.FinishedAt.UTC(),
	}
	rec.Positions = make([]PositionRecord, 0, len(s.Positions))
	for _, p := range s.Positions {
		rec.Positions = append(rec.Positions, newPositionRecord(run.ID, p, reg))
	}
	return rec
}

func newPositionRecord(runID string, p state.Position, reg *schema.Registry) PositionRecord {
	inst, _ := reg.Instrument(p.Symbol)
	return PositionRecord{
		RunID:           runID,
		Symbol:          string(p.Symbol),
		Qty:             int64(p.Qty),
		Cost:            int64(p.Cost),
		Realized:        int64(p.Realized),
		Fees:            int64(p.Fees),
		Volume:          int64(p.Volume),
		Fills:           p.Fills,
		QtyDisplay:      inst.FormatQty(p.Qty),
		AvgEntryDisplay: inst.FormatPrice(p.AvgEntry()),
	}
}

package persistence

import (
	"context"
	"time"

	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/models"
)

const DefaultRecorderQueue = 256

// Recorder hands settlements to a Ledger off the caller's goroutine.
// Room locks are held while settling, so the database must never be
// written from there directly.
type Recorder struct {
	ledger  Ledger
	records chan models.SettlementRecord
}

func NewRecorder(ledger Ledger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultRecorderQueue
	}
	return &Recorder{
		ledger:  ledger,
		records: make(chan models.SettlementRecord, queueSize),
	}
}

// Enqueue never blocks. It reports false when the queue is full and the
// record was dropped.
func (r *Recorder) Enqueue(record models.SettlementRecord) bool {
	select {
	case r.records <- record:
		return true
	default:
		logger.Log.Warnf("Settlement queue full, dropping room %s round %d", record.RoomCode, record.Round)
		return false
	}
}

// Run writes queued records until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case record := <-r.records:
			r.write(context.Background(), record)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case record := <-r.records:
			r.write(context.Background(), record)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, record models.SettlementRecord) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.ledger.RecordSettlement(ctx, record); err != nil {
		logger.Log.Errorf("Failed to record settlement for room %s round %d: %v", record.RoomCode, record.Round, err)
	}
}

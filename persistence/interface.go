// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/poolroom/models"
)

// Ledger 结算账本，只追加。Rooms are never restored from it.
type Ledger interface {
	RecordSettlement(ctx context.Context, record models.SettlementRecord) error
	Settlements(ctx context.Context, roomCode string) ([]models.SettlementRecord, error)
	Close() error
}

// 错误定义
var (
	ErrLedgerClosed = errors.New("ledger closed")
)

// NopLedger discards every record. It is used when no database is configured.
type NopLedger struct{}

func (NopLedger) RecordSettlement(context.Context, models.SettlementRecord) error { return nil }

func (NopLedger) Settlements(context.Context, string) ([]models.SettlementRecord, error) {
	return nil, nil
}

func (NopLedger) Close() error { return nil }

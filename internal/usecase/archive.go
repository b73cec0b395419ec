package usecase

import (
	"context"
	"fmt"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/repository"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/queue"
)

// ArchiveSignalsJobType is the queue message type for signal archiving.
const ArchiveSignalsJobType = "archive_signals"

// ArchiveSignalsPayload asks the worker to regenerate and persist
// signals for one symbol and window pair.
type ArchiveSignalsPayload struct {
	Code        string `json:"code"`
	ShortWindow int    `json:"short_window"`
	LongWindow  int    `json:"long_window"`
	ConfirmBars int    `json:"confirm_bars"`
	MinCrossGap int    `json:"min_cross_gap"`
}

// SignalArchiver is the background job that mirrors local price history
// and generated signals into ClickHouse.
type SignalArchiver struct {
	data  *marketdata.Service
	store *repository.SignalStore
	log   *logger.Logger
}

func NewSignalArchiver(data *marketdata.Service, store *repository.SignalStore, log *logger.Logger) *SignalArchiver {
	return &SignalArchiver{data: data, store: store, log: log}
}

func (a *SignalArchiver) Name() string { return "signal_archiver" }

func (a *SignalArchiver) Type() string { return ArchiveSignalsJobType }

// Handle loads the full local history, regenerates signals for the
// requested window pair and upserts both into ClickHouse.
func (a *SignalArchiver) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ArchiveSignalsPayload](payload)
	if err != nil {
		return fmt.Errorf("archive signals payload: %w", err)
	}
	if p.Code == "" || p.ShortWindow < 1 || p.LongWindow <= p.ShortWindow {
		return fmt.Errorf("archive signals: bad payload %+v", p)
	}

	bars, err := a.data.Bars(ctx, p.Code)
	if err != nil {
		return fmt.Errorf("archive signals load %s: %w", p.Code, err)
	}
	annotated, err := strategy.CalculateMovingAverages(bars, p.ShortWindow, p.LongWindow)
	if err != nil {
		return err
	}
	signals, err := strategy.GenerateSignals(annotated, p.ConfirmBars, p.MinCrossGap)
	if err != nil {
		return err
	}

	if err := a.store.SavePrices(ctx, p.Code, bars); err != nil {
		return err
	}
	if err := a.store.SaveSignals(ctx, p.Code, p.ShortWindow, p.LongWindow, signals); err != nil {
		return err
	}
	a.log.Info("signals archived",
		logger.String("code", p.Code),
		logger.Int("bars", len(bars)),
		logger.Int("signals", len(signals)),
	)
	return nil
}

package strategy

import (
	"fmt"
	"math"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
)

// CalculateMovingAverages annotates bars with simple moving averages of
// the close over shortWindow and longWindow. Windows must satisfy
// 1 <= shortWindow < longWindow. MA values are NaN until the window has
// seen enough bars.
func CalculateMovingAverages(bars []Bar, shortWindow, longWindow int) ([]BarMA, error) {
	if shortWindow < 1 || longWindow < 1 {
		return nil, fmt.Errorf("strategy: ma windows must be >= 1, got short=%d long=%d", shortWindow, longWindow)
	}
	if shortWindow >= longWindow {
		return nil, fmt.Errorf("strategy: short window %d must be less than long window %d", shortWindow, longWindow)
	}
	if len(bars) == 0 {
		return []BarMA{}, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	maShort, err := indicator.SMA(closes, shortWindow)
	if err != nil {
		return nil, err
	}
	maLong, err := indicator.SMA(closes, longWindow)
	if err != nil {
		return nil, err
	}

	out := make([]BarMA, len(bars))
	for i, b := range bars {
		out[i] = BarMA{Bar: b, MAShort: maShort[i], MALong: maLong[i]}
	}
	return out, nil
}

// GenerateSignals detects short/long MA crossovers on bars, confirms
// each one over the following confirmBars bars and suppresses confirmed
// signals that arrive within minCrossGap bars of the previous confirmed
// signal of the same type.
//
// A raw buy crossover at bar i means diff[i] > 0 and diff[i-1] <= 0
// where diff = maShort - maLong; sell is the mirror image. Confirmation
// requires the diff to stay strictly on the crossed side for every bar
// of the window [i, i+confirmBars]; windows running past the end of the
// series discard the signal. The emitted signal is stamped with the
// confirmation bar, not the crossover bar.
func GenerateSignals(bars []BarMA, confirmBars, minCrossGap int) ([]Signal, error) {
	if confirmBars < 0 {
		return nil, fmt.Errorf("strategy: confirm bars must be >= 0, got %d", confirmBars)
	}
	if minCrossGap < 0 {
		return nil, fmt.Errorf("strategy: min cross gap must be >= 0, got %d", minCrossGap)
	}

	// Warm-up rows carry NaN MAs and cannot participate in crossovers.
	valid := make([]BarMA, 0, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.MAShort) || math.IsNaN(b.MALong) {
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) < 2 {
		return []Signal{}, nil
	}

	diff := make([]float64, len(valid))
	for i, b := range valid {
		diff[i] = b.MAShort - b.MALong
	}

	signals := []Signal{}
	lastConfirmed := map[SignalType]int{}
	for i := 1; i < len(valid); i++ {
		var typ SignalType
		switch {
		case diff[i] > 0 && diff[i-1] <= 0:
			typ = SignalBuy
		case diff[i] < 0 && diff[i-1] >= 0:
			typ = SignalSell
		default:
			continue
		}

		end := i + confirmBars
		if end >= len(valid) {
			continue
		}
		confirmed := true
		for j := i; j <= end; j++ {
			if typ == SignalBuy && diff[j] <= 0 {
				confirmed = false
				break
			}
			if typ == SignalSell && diff[j] >= 0 {
				confirmed = false
				break
			}
		}
		if !confirmed {
			continue
		}

		if prev, ok := lastConfirmed[typ]; ok && end-prev <= minCrossGap {
			continue
		}
		lastConfirmed[typ] = end

		b := valid[end]
		signals = append(signals, Signal{
			Date:    b.Date,
			Type:    typ,
			Price:   b.Close,
			MAShort: b.MAShort,
			MALong:  b.MALong,
		})
	}
	return signals, nil
}

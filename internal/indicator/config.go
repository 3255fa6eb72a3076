package indicator

import (
	"errors"
	"fmt"

	"tradesim/internal/model"
)

// ErrUnknownIndicator is returned for a slot with no constructor.
var ErrUnknownIndicator = errors.New("indicator: unknown indicator slot")

// TFIndicatorConfig lists the indicator slots computed for one timeframe.
type TFIndicatorConfig struct {
	TF    model.Timeframe       `yaml:"timeframe" json:"timeframe"`
	Slots []model.IndicatorSlot `yaml:"indicators" json:"indicators"`
}

// New creates a fresh indicator instance for a preset slot.
func New(slot model.IndicatorSlot) (Indicator, error) {
	switch slot {
	case model.EMA8:
		return NewEMA(8)
	case model.EMA25:
		return NewEMA(25)
	case model.EMA50:
		return NewEMA(50)
	case model.SMA20:
		return NewSMA(20)
	case model.SMMA20:
		return NewSMMA(20)
	case model.RSI14:
		return NewRSI(14)
	case model.MACD:
		return NewMACD(MACDFast, MACDSlow)
	case model.MACDSignal:
		return NewMACDSignal(MACDFast, MACDSlow, MACDSignalLength)
	case model.ATR14:
		return NewATR(14)
	case model.CCI20:
		return NewCCI(20)
	case model.ParabolicSAR:
		return NewParabolicSAR(SARStart, SARStep, SARMax)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownIndicator, uint8(slot))
}

// ValidateConfigs checks that every timeframe is supported and appears once,
// and that every slot is known and appears once per timeframe.
func ValidateConfigs(configs []TFIndicatorConfig) error {
	var seenTF [model.TimeframeCount]bool
	for _, cfg := range configs {
		if int(cfg.TF) >= model.TimeframeCount {
			return fmt.Errorf("indicator config: unsupported timeframe %d", uint8(cfg.TF))
		}
		if seenTF[cfg.TF.Index()] {
			return fmt.Errorf("indicator config: duplicate timeframe %s", cfg.TF)
		}
		seenTF[cfg.TF.Index()] = true

		var seenSlot [model.IndicatorSlotCount]bool
		for _, slot := range cfg.Slots {
			if int(slot) >= model.IndicatorSlotCount {
				return fmt.Errorf("indicator config %s: %w: %d", cfg.TF, ErrUnknownIndicator, uint8(slot))
			}
			if seenSlot[slot] {
				return fmt.Errorf("indicator config %s: duplicate indicator %s", cfg.TF, slot)
			}
			seenSlot[slot] = true
		}
	}
	return nil
}

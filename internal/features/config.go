package features

const featureSpecVersion = "v1"

// Indicator parameters shared by every build. Window sizes for RSI and
// MFI are configurable; the rest are fixed so the schema stays canonical.
const (
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	smaPeriod       = 20
	emaShortPeriod  = 10
	emaLongPeriod   = 50
	atrPeriod       = 14
	bbPeriod        = 20
	bbStdDevs       = 2.0
	volRegimeMedian = 50

	// TargetHorizon is the forward distance of the binary label: 1 when
	// the close 3 bars ahead is strictly greater than the current close.
	TargetHorizon = 3

	sentimentLookbackDays = 7
)

// Raw and derived column names. Order in Config.Columns is the canonical
// schema: identical for every ticker and date range.
const (
	ColOpen   = "Open"
	ColHigh   = "High"
	ColLow    = "Low"
	ColClose  = "Close"
	ColVolume = "Volume"

	ColReturn      = "RETURN"
	ColRSI         = "RSI"
	ColRSIMomentum = "RSI_MOMENTUM"
	ColMACD        = "MACD"
	ColSMA20       = "SMA_20"
	ColEMA10       = "EMA_10"
	ColEMA50       = "EMA_50"
	ColATR14       = "ATR14"
	ColBBMid       = "BB_MID"
	ColBBUpper     = "BB_UPPER"
	ColBBLower     = "BB_LOWER"
	ColVolRegime   = "VOL_REGIME"
	ColOBV         = "OBV"
	ColMFI         = "MFI"
	ColSocial      = "SOCIAL_SENTIMENT"
	ColNews        = "NEWS_SENTIMENT"
)

// Config enumerates the enabled indicator groups and their window sizes.
// It is an explicit value threaded into the builder, never process-wide
// state.
type Config struct {
	RSI             bool
	RSIMomentum     bool
	MACD            bool
	SMA20           bool
	EMA10           bool
	EMA50           bool
	ATR             bool
	Bollinger       bool
	VolRegime       bool
	OBV             bool
	MFI             bool
	SocialSentiment bool
	NewsSentiment   bool

	RSIWindow int
	MFIWindow int
}

// DefaultConfig enables every feature group.
func DefaultConfig() Config {
	return Config{
		RSI:             true,
		RSIMomentum:     true,
		MACD:            true,
		SMA20:           true,
		EMA10:           true,
		EMA50:           true,
		ATR:             true,
		Bollinger:       true,
		VolRegime:       true,
		OBV:             true,
		MFI:             true,
		SocialSentiment: true,
		NewsSentiment:   true,
		RSIWindow:       14,
		MFIWindow:       14,
	}
}

func (c Config) rsiWindow() int {
	if c.RSIWindow > 0 {
		return c.RSIWindow
	}
	return 14
}

func (c Config) mfiWindow() int {
	if c.MFIWindow > 0 {
		return c.MFIWindow
	}
	return 14
}

// Columns returns the canonical column schema for this configuration:
// raw OHLCV first, then enabled indicators in fixed order, then enabled
// sentiment series. The target column is never part of the schema.
func (c Config) Columns() []string {
	cols := []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume, ColReturn}
	if c.RSI {
		cols = append(cols, ColRSI)
	}
	if c.RSIMomentum {
		cols = append(cols, ColRSIMomentum)
	}
	if c.MACD {
		cols = append(cols, ColMACD)
	}
	if c.SMA20 {
		cols = append(cols, ColSMA20)
	}
	if c.EMA10 {
		cols = append(cols, ColEMA10)
	}
	if c.EMA50 {
		cols = append(cols, ColEMA50)
	}
	if c.ATR || c.VolRegime {
		cols = append(cols, ColATR14)
	}
	if c.Bollinger {
		cols = append(cols, ColBBMid, ColBBUpper, ColBBLower)
	}
	if c.VolRegime {
		cols = append(cols, ColVolRegime)
	}
	if c.OBV {
		cols = append(cols, ColOBV)
	}
	if c.MFI {
		cols = append(cols, ColMFI)
	}
	if c.SocialSentiment {
		cols = append(cols, ColSocial)
	}
	if c.NewsSentiment {
		cols = append(cols, ColNews)
	}
	return cols
}

// WarmupRows returns the number of leading rows that carry at least one
// undefined indicator value for this configuration. The volatility
// regime chain (ATR warm-up plus its median window) dominates when
// enabled.
func (c Config) WarmupRows() int {
	warmup := 1 // RETURN is undefined at index 0
	max := func(v int) {
		if v > warmup {
			warmup = v
		}
	}
	if c.RSI {
		max(c.rsiWindow())
	}
	if c.RSIMomentum {
		max(c.rsiWindow() + 1)
	}
	if c.SMA20 {
		max(smaPeriod - 1)
	}
	if c.ATR {
		max(atrPeriod - 1)
	}
	if c.Bollinger {
		max(bbPeriod - 1)
	}
	if c.VolRegime {
		max(atrPeriod - 1 + volRegimeMedian - 1)
	}
	if c.MFI {
		max(c.mfiWindow() - 1)
	}
	return warmup
}

// FeatureSpecVersion identifies the canonical schema revision persisted
// alongside trained models.
func FeatureSpecVersion() string {
	return featureSpecVersion
}

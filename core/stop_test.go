package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTrailingStopConfigured(t *testing.T) {
	var missing *TrailingStop
	require.False(t, missing.Configured())
	require.False(t, (&TrailingStop{}).Configured())

	stop := &TrailingStop{ConfiguredAt: time.Now()}
	require.True(t, stop.Configured())
}

func TestTrailingStopDue(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stop := &TrailingStop{
		ConfiguredAt: base,
		LastUpdateAt: base,
		UpdateEvery:  Duration(time.Hour),
	}

	require.False(t, stop.Due(base.Add(3599*time.Second)))
	require.True(t, stop.Due(base.Add(3600*time.Second)))
	require.Equal(t, base.Add(time.Hour), stop.NextDue())

	var missing *TrailingStop
	require.False(t, missing.Due(base))
}

func TestTrailingStopClone(t *testing.T) {
	stop := &TrailingStop{
		OrderID:      common.HexToHash("0x01"),
		CurrentStop:  big.NewInt(980),
		InitialStop:  big.NewInt(1000),
		ConfiguredAt: time.Now(),
	}

	clone := stop.Clone()
	clone.CurrentStop.SetInt64(1)
	require.EqualValues(t, 980, stop.CurrentStop.Int64())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1h30m"`), &d))
	require.Equal(t, 90*time.Minute, d.Std())

	// bare numbers are seconds
	require.NoError(t, json.Unmarshal([]byte(`3600`), &d))
	require.Equal(t, time.Hour, d.Std())

	out, err := json.Marshal(Duration(2 * time.Hour))
	require.NoError(t, err)
	require.JSONEq(t, `"2h0m0s"`, string(out))

	var cfg struct {
		Every Duration `yaml:"every"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("every: 2d"), &cfg))
	require.Equal(t, 48*time.Hour, cfg.Every.Std())

	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}

func TestClassify(t *testing.T) {
	cases := map[ErrorClass][]error{
		ClassConfiguration: {ErrInvalidOracle, ErrInvalidStopPrice, ErrInvalidTrailingDistance, ErrInvalidAmount},
		ClassState:         {ErrNotConfigured, ErrUpdateTooFrequent, ErrStopNotReached},
		ClassExecution:     {ErrInsufficientFunds, ErrSlippageExceeded, ErrSwapFailed, ErrExecutionTimeout},
		ClassAvailability:  {ErrOracleUnavailable, ErrPaused},
	}

	for class, errs := range cases {
		for _, err := range errs {
			require.Equal(t, class, Classify(err), err.Error())
			require.Equal(t, class, Classify(fmt.Errorf("wrapped: %w", err)))
		}
	}

	require.Equal(t, ClassUnknown, Classify(nil))
	require.Equal(t, ClassUnknown, Classify(fmt.Errorf("boom")))
}

func TestOracleRefSplit(t *testing.T) {
	scheme, target := OracleRef("binance:ETHUSDT").Split()
	require.Equal(t, "binance", scheme)
	require.Equal(t, "ETHUSDT", target)

	scheme, target = OracleRef("static").Split()
	require.Equal(t, "static", scheme)
	require.Empty(t, target)

	require.True(t, OracleRef("").IsZero())
}

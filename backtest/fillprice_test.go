package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pohanwww/auto-trade/core"
)

// The fill-price table, exhaustively, for every reason/direction/gap
// combination.
func TestResolveFillPrice(t *testing.T) {
	cases := []struct {
		name    string
		reason  core.ExitReason
		long    bool
		trigger float64
		bar     core.Bar
		want    float64
	}{
		{"TP long, no gap", core.ExitTakeProfit, true, 100, core.Bar{Open: 95, High: 105, Low: 90, Close: 102}, 100},
		{"TP long, gap up through target", core.ExitTakeProfit, true, 100, core.Bar{Open: 110, High: 115, Low: 108, Close: 112}, 110},
		{"TP short, no gap", core.ExitTakeProfit, false, 100, core.Bar{Open: 105, High: 108, Low: 95, Close: 98}, 100},
		{"TP short, gap down through target", core.ExitTakeProfit, false, 100, core.Bar{Open: 90, High: 92, Low: 85, Close: 88}, 90},

		{"SL long, no gap", core.ExitStopLoss, true, 100, core.Bar{Open: 105, High: 110, Low: 98, Close: 103}, 100},
		{"SL long, gap down through stop", core.ExitStopLoss, true, 100, core.Bar{Open: 90, High: 92, Low: 85, Close: 88}, 90},
		{"SL short, no gap", core.ExitStopLoss, false, 100, core.Bar{Open: 95, High: 98, Low: 90, Close: 96}, 100},
		{"SL short, gap up through stop", core.ExitStopLoss, false, 100, core.Bar{Open: 110, High: 115, Low: 108, Close: 112}, 110},

		{"TS long, no gap", core.ExitTrailingStop, true, 100, core.Bar{Open: 105, High: 110, Low: 98, Close: 103}, 100},
		{"TS long, gap down", core.ExitTrailingStop, true, 100, core.Bar{Open: 90, High: 92, Low: 85, Close: 88}, 90},
		{"TS short, no gap", core.ExitTrailingStop, false, 100, core.Bar{Open: 95, High: 98, Low: 90, Close: 96}, 100},
		{"TS short, gap up", core.ExitTrailingStop, false, 100, core.Bar{Open: 110, High: 115, Low: 108, Close: 112}, 110},

		{"FastStop always fills at open, long", core.ExitFastStop, true, 100, core.Bar{Open: 97, High: 99, Low: 95, Close: 96}, 97},
		{"FastStop always fills at open, short", core.ExitFastStop, false, 100, core.Bar{Open: 103, High: 105, Low: 101, Close: 104}, 103},

		{"TimeExit fills at close", core.ExitTimeExit, true, 100, core.Bar{Open: 99, High: 101, Low: 98, Close: 100.5}, 100.5},
		{"MomentumExit fills at close", core.ExitMomentumExit, false, 100, core.Bar{Open: 99, High: 101, Low: 98, Close: 100.5}, 100.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveFillPrice(tc.reason, tc.long, tc.trigger, tc.bar)
			assert.Equal(t, tc.want, got)
		})
	}
}

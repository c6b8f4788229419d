package replay

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"

	"github.com/raykavin/stopkeep/metric"
)

// String formats the replay outcome as a text table
func (r *Result) String() string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	triggered := "no"
	if r.Triggered {
		triggered = r.TriggerTime.Format(time.RFC3339)
	}

	data := [][]string{
		{"Candles", strconv.Itoa(r.Candles)},
		{"Updates", strconv.Itoa(r.Updates)},
		{"Holds", strconv.Itoa(r.Holds)},
		{"Skipped", strconv.Itoa(r.Skipped)},
		{"Triggered", triggered},
		{"Exit", fmt.Sprintf("%.2f", r.ExitPrice)},
		{"Peak", fmt.Sprintf("%.2f", r.PeakPrice)},
		{"Final stop", fmt.Sprintf("%.2f", r.FinalStop)},
		{"Efficiency", fmt.Sprintf("%.1f %%", r.Efficiency()*100)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return tableString.String()
}

// Summary writes the replay table followed by the drawdown line and a
// histogram of per-candle returns.
func (r *Result) Summary(w io.Writer) {
	fmt.Fprintln(w, r.String())

	returns := r.TickReturns()
	fmt.Fprintf(w, "Return mean %.2f%%, stddev %.2f%%\n", metric.Mean(returns)*100, metric.StdDev(returns)*100)

	if drawdown, start, end := r.MaxDrawdown(); drawdown < 0 {
		fmt.Fprintf(w, "Max drawdown %.2f%% between %s and %s\n",
			drawdown*100, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	if len(returns) == 0 {
		return
	}

	fmt.Fprintln(w, "------ RETURN -------")
	returnsPercent := make([]float64, len(returns))
	for i, p := range returns {
		returnsPercent[i] = p * 100
	}
	hist := histogram.Hist(15, returnsPercent)
	histogram.Fprint(w, hist, histogram.Linear(10))
	fmt.Fprintln(w)
}

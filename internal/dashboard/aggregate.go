package dashboard

import (
	"math"
	"sort"

	"findash/internal/core"
)

// TrendWindow is the trailing moving-average window applied to the daily
// revenue series.
const TrendWindow = 3

// TopExpenseLimit caps the top-expenses ranking.
const TopExpenseLimit = 10

type (
	// CategoryAmount is one slice of a grouped breakdown. Order follows
	// the first appearance of the label in the input.
	CategoryAmount struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	// ExpenseItem is one entry of the top-expenses ranking.
	ExpenseItem struct {
		Description string  `json:"description"`
		Value       float64 `json:"value"`
	}

	// Result holds everything the dashboard derives from one
	// (dataset, date range) query. It is replaced wholesale on every
	// filter change, never mutated.
	Result struct {
		GrossRevenue  float64 `json:"grossRevenue"`
		TotalExpenses float64 `json:"totalExpenses"`
		NetProfit     float64 `json:"netProfit"`
		ProfitMargin  float64 `json:"profitMargin"`
		AverageTicket float64 `json:"averageTicket"`

		RevenueBySubcategory   []CategoryAmount `json:"revenueBySubcategory"`
		RevenueByPaymentMethod []CategoryAmount `json:"revenueByPaymentMethod"`
		ExpensesBySubcategory  []CategoryAmount `json:"expensesBySubcategory"`
		TopExpenses            []ExpenseItem    `json:"topExpenses"`

		DailyRevenueXAxis []string   `json:"dailyRevenueXAxis"`
		DailyRevenue      []float64  `json:"dailyRevenue"`
		Trend             []*float64 `json:"trend"`
	}
)

// Aggregate computes KPIs, breakdowns and the daily revenue series for one
// query. Pure: it only reads its inputs and allocates its output, so it is
// safe to call concurrently.
func Aggregate(revenues, expenses []core.Transaction) Result {
	var r Result

	for _, t := range revenues {
		r.GrossRevenue += t.Value
	}
	for _, t := range expenses {
		r.TotalExpenses += t.Value
	}
	r.NetProfit = r.GrossRevenue - r.TotalExpenses
	if r.GrossRevenue > 0 {
		r.ProfitMargin = r.NetProfit / r.GrossRevenue
	}
	if len(revenues) > 0 {
		r.AverageTicket = r.GrossRevenue / float64(len(revenues))
	}

	r.RevenueBySubcategory = groupByLabel(revenues, func(t core.Transaction) string { return t.Subcategory }, false)
	r.RevenueByPaymentMethod = groupByLabel(revenues, func(t core.Transaction) string { return t.PaymentMethod }, false)
	r.ExpensesBySubcategory = groupByLabel(expenses, func(t core.Transaction) string { return t.Subcategory }, true)

	r.DailyRevenueXAxis, r.DailyRevenue, r.Trend = dailySeries(revenues)
	r.TopExpenses = topExpenses(expenses)

	return r
}

// groupByLabel sums values per label, keeping labels in first-seen order.
// Labels are taken verbatim: no trimming or case folding.
func groupByLabel(items []core.Transaction, label func(core.Transaction) string, round bool) []CategoryAmount {
	index := make(map[string]int, len(items))
	groups := make([]CategoryAmount, 0, len(items))
	for _, t := range items {
		name := label(t)
		if i, ok := index[name]; ok {
			groups[i].Value += t.Value
			continue
		}
		index[name] = len(groups)
		groups = append(groups, CategoryAmount{Name: name, Value: t.Value})
	}
	if round {
		for i := range groups {
			groups[i].Value = round2(groups[i].Value)
		}
	}
	return groups
}

// dailySeries buckets revenue by issue date, sorts buckets by actual
// calendar date and derives the trend series from the unrounded sums.
func dailySeries(revenues []core.Transaction) (xAxis []string, series []float64, trend []*float64) {
	type bucket struct {
		label string
		ts    int64
		sum   float64
	}

	index := make(map[string]int, len(revenues))
	buckets := make([]bucket, 0, len(revenues))
	for _, t := range revenues {
		if i, ok := index[t.IssueDate]; ok {
			buckets[i].sum += t.Value
			continue
		}
		ts, err := core.ParseIssueDate(t.IssueDate)
		if err != nil {
			// Persisted dates have already passed validation; an
			// unparsable one cannot be placed on the axis.
			continue
		}
		index[t.IssueDate] = len(buckets)
		buckets = append(buckets, bucket{label: t.IssueDate, ts: ts.Unix(), sum: t.Value})
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].ts < buckets[j].ts })

	xAxis = make([]string, len(buckets))
	raw := make([]float64, len(buckets))
	series = make([]float64, len(buckets))
	for i, b := range buckets {
		xAxis[i] = b.label
		raw[i] = b.sum
		series[i] = round2(b.sum)
	}

	return xAxis, series, MovingAverage(raw, TrendWindow)
}

// MovingAverage computes a trailing arithmetic mean of the given window,
// left-padded with nils so the output aligns index-for-index with the
// input. Inputs shorter than the window yield an empty series.
func MovingAverage(data []float64, window int) []*float64 {
	if window <= 0 || len(data) < window {
		return []*float64{}
	}
	out := make([]*float64, window-1, len(data))
	for i := 0; i <= len(data)-window; i++ {
		var sum float64
		for _, v := range data[i : i+window] {
			sum += v
		}
		avg := round2(sum / float64(window))
		out = append(out, &avg)
	}
	return out
}

// topExpenses ranks expenses by value descending. The sort is stable so
// equal values keep their input order.
func topExpenses(expenses []core.Transaction) []ExpenseItem {
	ranked := make([]core.Transaction, len(expenses))
	copy(ranked, expenses)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })

	if len(ranked) > TopExpenseLimit {
		ranked = ranked[:TopExpenseLimit]
	}
	out := make([]ExpenseItem, len(ranked))
	for i, t := range ranked {
		out[i] = ExpenseItem{Description: t.Description, Value: t.Value}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

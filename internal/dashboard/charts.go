package dashboard

// Chart payloads are declarative: the renderer owns its redraw lifecycle,
// the dashboard only ever replaces these option structs.

const (
	RevenueSeriesName = "Faturamento"
	TrendSeriesName   = "Tendência (Média Móvel 3 dias)"
)

type (
	PieChartOptions struct {
		Title string           `json:"title"`
		Data  []CategoryAmount `json:"data"`
	}

	LineSeries struct {
		Name string     `json:"name"`
		Data []*float64 `json:"data"`
	}

	LineChartOptions struct {
		Title  string       `json:"title"`
		XAxis  []string     `json:"xAxis"`
		Series []LineSeries `json:"series"`
	}

	BarChartOptions struct {
		Title      string    `json:"title"`
		Categories []string  `json:"categories"`
		Values     []float64 `json:"values"`
	}

	// ChartSet carries one payload per chart instance on the page.
	ChartSet struct {
		RevenueBySubcategory   PieChartOptions  `json:"revenueBySubcategory"`
		RevenueByPaymentMethod PieChartOptions  `json:"revenueByPaymentMethod"`
		ExpensesBySubcategory  PieChartOptions  `json:"expensesBySubcategory"`
		DailyRevenue           LineChartOptions `json:"dailyRevenue"`
		TopExpenses            BarChartOptions  `json:"topExpenses"`
	}
)

// BuildCharts projects an aggregation result into renderer payloads.
func BuildCharts(r Result) ChartSet {
	revenue := make([]*float64, len(r.DailyRevenue))
	for i := range r.DailyRevenue {
		v := r.DailyRevenue[i]
		revenue[i] = &v
	}

	topCategories := make([]string, len(r.TopExpenses))
	topValues := make([]float64, len(r.TopExpenses))
	for i, e := range r.TopExpenses {
		topCategories[i] = e.Description
		topValues[i] = e.Value
	}

	return ChartSet{
		RevenueBySubcategory: PieChartOptions{
			Title: "Receita por subcategoria",
			Data:  r.RevenueBySubcategory,
		},
		RevenueByPaymentMethod: PieChartOptions{
			Title: "Receita por forma de pagamento",
			Data:  r.RevenueByPaymentMethod,
		},
		ExpensesBySubcategory: PieChartOptions{
			Title: "Despesas por subcategoria",
			Data:  r.ExpensesBySubcategory,
		},
		DailyRevenue: LineChartOptions{
			Title: "Faturamento diário",
			XAxis: r.DailyRevenueXAxis,
			Series: []LineSeries{
				{Name: RevenueSeriesName, Data: revenue},
				{Name: TrendSeriesName, Data: r.Trend},
			},
		},
		TopExpenses: BarChartOptions{
			Title:      "Maiores despesas",
			Categories: topCategories,
			Values:     topValues,
		},
	}
}

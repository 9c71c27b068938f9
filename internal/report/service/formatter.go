package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	LabelMRR          = "MRR"
	LabelChurnRate    = "Churn Rate"
	LabelNewCustomers = "New Customers This Month"
	LabelGrowthRate   = "MRR Growth (30d)"

	headerDateLayout = "Monday, January 2, 2006"
	footerTimeLayout = "3:04:05 PM"
)

// Formatter renders snapshots in US English with amounts in USD.
type Formatter struct {
	loc     *time.Location
	printer *message.Printer
	// minor units of USD per currency.Standard
	scale int32
}

func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	scale, _ := currency.Standard.Rounding(currency.USD)
	return &Formatter{
		loc:     loc,
		printer: message.NewPrinter(language.AmericanEnglish),
		scale:   int32(scale),
	}
}

func (f *Formatter) Format(snapshot metricsdomain.Snapshot, title string) reportdomain.Report {
	generatedAt := snapshot.ComputedAt.In(f.loc)

	fields := []reportdomain.Field{
		{Label: LabelMRR, Value: f.Currency(snapshot.MonthlyRecurringRevenue)},
		{Label: LabelChurnRate, Value: Percent(snapshot.ChurnRatePercent)},
		{Label: LabelNewCustomers, Value: f.printer.Sprintf("%d", snapshot.NewCustomerCount)},
	}
	if snapshot.MRRGrowthRatePercent != nil {
		fields = append(fields, reportdomain.Field{Label: LabelGrowthRate, Value: SignedPercent(*snapshot.MRRGrowthRatePercent)})
	}

	return reportdomain.Report{
		Title:       title,
		Header:      fmt.Sprintf("📊 %s - %s", title, generatedAt.Format(headerDateLayout)),
		Fields:      fields,
		Footer:      "Report generated at " + generatedAt.Format(footerTimeLayout),
		GeneratedAt: generatedAt,
		Snapshot:    snapshot,
	}
}

// Currency formats amount as USD with digit grouping, e.g. $12,345.60.
func (f *Formatter) Currency(amount decimal.Decimal) string {
	rounded := amount.Round(f.scale)
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(f.scale), ".")

	grouped := whole
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		grouped = f.printer.Sprintf("%d", n)
	}

	out := "$" + grouped
	if frac != "" {
		out += "." + frac
	}
	if rounded.IsNegative() {
		out = "-" + out
	}
	return out
}

func Percent(value float64) string {
	return fmt.Sprintf("%.2f%%", value)
}

// SignedPercent always carries a sign so growth and decline read apart.
func SignedPercent(value float64) string {
	return fmt.Sprintf("%+.2f%%", value)
}

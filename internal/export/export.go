// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/events"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures the export behavior
type Options struct {
	Format       Format
	StartTime    time.Time
	EndTime      time.Time
	MarketFilter string           // base58 market address
	TypeFilter   events.EventType // single event type
	OutputDir    string
}

// Exporter writes market event histories to disk
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new event exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{
		logger: logger.Named("export"),
	}
}

// Export writes the events matching options and returns the file path.
func (x *Exporter) Export(evs []events.Event, options Options) (string, error) {
	records := x.filter(evs, options)

	if len(records) == 0 {
		return "", fmt.Errorf("no events match the export criteria")
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})

	filename := x.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = x.exportToCSV(records, outputPath)
	case FormatJSON:
		err = x.exportToJSON(records, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	x.logger.Info("Events exported",
		zap.String("file", outputPath),
		zap.Int("count", len(records)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func (x *Exporter) filter(evs []events.Event, options Options) []Record {
	var records []Record

	for _, e := range evs {
		if !options.StartTime.IsZero() && e.Timestamp().Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && e.Timestamp().After(options.EndTime) {
			continue
		}
		if options.TypeFilter != "" && e.Type() != options.TypeFilter {
			continue
		}

		r := Flatten(e)
		if options.MarketFilter != "" && r.Market != options.MarketFilter {
			continue
		}
		records = append(records, r)
	}

	return records
}

// generateFilename creates a filename based on export options
func (x *Exporter) generateFilename(options Options) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "events_all"
	if options.TypeFilter != "" {
		prefix = "events_" + sanitize(string(options.TypeFilter))
	}

	if m := options.MarketFilter; m != "" {
		if len(m) > 8 {
			m = m[:8]
		}
		prefix += "_" + m
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c == '.' {
			out[i] = '_'
		}
	}
	return string(out)
}

func (x *Exporter) exportToCSV(records []Record, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range records {
		if err := writer.Write(r.ToCSV()); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (x *Exporter) exportToJSON(records []Record, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time `json:"export_time"`
		EventCount int       `json:"event_count"`
		Events     []Record  `json:"events"`
		Summary    Summary   `json:"summary"`
	}{
		ExportTime: time.Now(),
		EventCount: len(records),
		Events:     records,
		Summary:    calculateSummary(records),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// Summary contains aggregate statistics for exported events
type Summary struct {
	TotalEvents     int       `json:"total_events"`
	Swaps           int       `json:"swaps"`
	Buybacks        int       `json:"buybacks"`
	Migrations      int       `json:"migrations"`
	UniqueMarkets   int       `json:"unique_markets"`
	BaseVolume      uint64    `json:"base_volume"`
	QuoteVolume     uint64    `json:"quote_volume"`
	CreatorFees     uint64    `json:"creator_fees"`
	ProtocolFees    uint64    `json:"protocol_fees"`
	ReferralFees    uint64    `json:"referral_fees"`
	BuybackLamports uint64    `json:"buyback_lamports"`
	ReflectionPaid  uint64    `json:"reflection_paid"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

// calculateSummary expects records sorted by time.
func calculateSummary(records []Record) Summary {
	summary := Summary{
		TotalEvents: len(records),
	}

	if len(records) == 0 {
		return summary
	}

	summary.StartDate = records[0].Time
	summary.EndDate = records[len(records)-1].Time

	markets := make(map[string]bool)
	for _, r := range records {
		if r.Market != "" {
			markets[r.Market] = true
		}

		switch r.Type {
		case events.SwapExecuted:
			summary.Swaps++
			summary.BaseVolume += r.BaseAmount
			summary.QuoteVolume += r.QuoteAmount
			summary.CreatorFees += r.CreatorFee
			summary.ProtocolFees += r.ProtocolFee
			summary.ReferralFees += r.ReferralFee
		case events.BuybackExecuted:
			summary.Buybacks++
			summary.BuybackLamports += r.QuoteAmount
		case events.MarketMigrated:
			summary.Migrations++
		case events.ReflectionClaimed:
			summary.ReflectionPaid += r.BaseAmount
		}
	}

	summary.UniqueMarkets = len(markets)
	return summary
}

// DailyReport represents one day of market activity
type DailyReport struct {
	Date            time.Time     `json:"date"`
	EventCount      int           `json:"event_count"`
	Summary         Summary       `json:"summary"`
	HourlyBreakdown []HourlyStats `json:"hourly_breakdown"`
	Events          []Record      `json:"events"`
}

// HourlyStats represents swap activity for an hour
type HourlyStats struct {
	Hour        int    `json:"hour"`
	EventCount  int    `json:"event_count"`
	Swaps       int    `json:"swaps"`
	QuoteVolume uint64 `json:"quote_volume"`
	Fees        uint64 `json:"fees"`
}

// ExportDailyReport writes a JSON report for the day containing date. It
// returns an empty path when the day had no events.
func (x *Exporter) ExportDailyReport(evs []events.Event, date time.Time, outputDir string) (string, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	records := x.filter(evs, Options{StartTime: startOfDay, EndTime: endOfDay})
	if len(records) == 0 {
		x.logger.Info("No events for daily report",
			zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})

	report := DailyReport{
		Date:            startOfDay,
		EventCount:      len(records),
		Summary:         calculateSummary(records),
		HourlyBreakdown: hourlyBreakdown(records),
		Events:          records,
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	x.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("events", len(records)))

	return outputPath, nil
}

func hourlyBreakdown(records []Record) []HourlyStats {
	hourly := make(map[int]*HourlyStats)

	for _, r := range records {
		hour := r.Time.Hour()
		stats, ok := hourly[hour]
		if !ok {
			stats = &HourlyStats{Hour: hour}
			hourly[hour] = stats
		}

		stats.EventCount++
		if r.Type == events.SwapExecuted {
			stats.Swaps++
			stats.QuoteVolume += r.QuoteAmount
			stats.Fees += r.CreatorFee + r.ProtocolFee + r.ReferralFee
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, ok := hourly[hour]; ok {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}

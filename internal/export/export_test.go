package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/events"
)

var (
	marketA = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	marketB = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	buyer   = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
)

func TestEventExportCSV(t *testing.T) {
	exporter := NewExporter(zap.NewNop())
	tempDir := t.TempDir()

	outputPath, err := exporter.Export(generateTestEvents(), Options{
		Format:    FormatCSV,
		OutputDir: tempDir,
	})
	if err != nil {
		t.Fatalf("Failed to export events: %v", err)
	}

	file, err := os.Open(outputPath)
	if err != nil {
		t.Fatalf("Failed to open export file: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("Expected header plus 6 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeaders(), ",") {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	// sorted by time: the payment comes first
	if rows[1][1] != string(events.PaymentReceived) {
		t.Errorf("Expected first row to be a payment, got %s", rows[1][1])
	}
}

func TestEventExportJSON(t *testing.T) {
	exporter := NewExporter(zap.NewNop())
	tempDir := t.TempDir()

	outputPath, err := exporter.Export(generateTestEvents(), Options{
		Format:    FormatJSON,
		OutputDir: tempDir,
	})
	if err != nil {
		t.Fatalf("Failed to export events: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read export file: %v", err)
	}

	var decoded struct {
		EventCount int      `json:"event_count"`
		Events     []Record `json:"events"`
		Summary    Summary  `json:"summary"`
	}
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}
	if decoded.EventCount != 6 || len(decoded.Events) != 6 {
		t.Errorf("Expected 6 events, got %d/%d", decoded.EventCount, len(decoded.Events))
	}
	if decoded.Summary.Swaps != 2 {
		t.Errorf("Expected 2 swaps in summary, got %d", decoded.Summary.Swaps)
	}
}

func TestEventExportFilters(t *testing.T) {
	exporter := NewExporter(zap.NewNop())
	evs := generateTestEvents()
	now := time.Now()

	tests := []struct {
		name    string
		options Options
		want    int
	}{
		{"time window", Options{StartTime: now.Add(-50 * time.Minute), EndTime: now.Add(-15 * time.Minute)}, 3},
		{"market", Options{MarketFilter: marketB.String()}, 2},
		{"type", Options{TypeFilter: events.SwapExecuted}, 2},
		{"market and type", Options{MarketFilter: marketA.String(), TypeFilter: events.SwapExecuted}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exporter.filter(evs, tt.options)
			if len(got) != tt.want {
				t.Errorf("Expected %d events, got %d", tt.want, len(got))
			}
		})
	}

	_, err := exporter.Export(evs, Options{
		Format:     FormatCSV,
		TypeFilter: events.AirdropExpired,
		OutputDir:  t.TempDir(),
	})
	if err == nil {
		t.Error("Expected an error when nothing matches")
	}
}

func TestDailyReportExport(t *testing.T) {
	exporter := NewExporter(zap.NewNop())
	tempDir := t.TempDir()
	evs := generateTestEvents()

	day := evs[0].Timestamp()
	outputPath, err := exporter.ExportDailyReport(evs, day, tempDir)
	if err != nil {
		t.Fatalf("Failed to export daily report: %v", err)
	}
	if outputPath == "" {
		t.Fatal("Expected a report for a day with events")
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	var report DailyReport
	if err := json.Unmarshal(content, &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if len(report.HourlyBreakdown) == 0 {
		t.Error("Expected an hourly breakdown")
	}

	outputPath, err = exporter.ExportDailyReport(evs, day.AddDate(0, 0, -7), tempDir)
	if err != nil {
		t.Fatalf("Failed to export empty daily report: %v", err)
	}
	if outputPath != "" {
		t.Errorf("Expected no report for an empty day, got %s", outputPath)
	}
}

func TestSummaryCalculation(t *testing.T) {
	exporter := NewExporter(zap.NewNop())
	records := exporter.filter(generateTestEvents(), Options{})

	summary := calculateSummary(records)

	if summary.TotalEvents != 6 {
		t.Errorf("Expected 6 total events, got %d", summary.TotalEvents)
	}
	if summary.Swaps != 2 || summary.Buybacks != 1 || summary.Migrations != 1 {
		t.Errorf("Unexpected counts: %+v", summary)
	}
	if summary.QuoteVolume != 300_000 {
		t.Errorf("Expected quote volume 300000, got %d", summary.QuoteVolume)
	}
	if summary.ProtocolFees != 12_150 {
		t.Errorf("Expected protocol fees 12150, got %d", summary.ProtocolFees)
	}
	if summary.BuybackLamports != 40_000 {
		t.Errorf("Expected buyback lamports 40000, got %d", summary.BuybackLamports)
	}
	if summary.UniqueMarkets != 2 {
		t.Errorf("Expected 2 markets, got %d", summary.UniqueMarkets)
	}
}

func TestFilenameGeneration(t *testing.T) {
	exporter := NewExporter(zap.NewNop())

	tests := []struct {
		options  Options
		expected string
	}{
		{
			options:  Options{Format: FormatCSV},
			expected: "events_all",
		},
		{
			options:  Options{Format: FormatJSON, TypeFilter: events.SwapExecuted},
			expected: "events_market_swap",
		},
		{
			options:  Options{Format: FormatCSV, TypeFilter: events.BuybackExecuted, MarketFilter: "TokenkegQfeZ"},
			expected: "events_market_buyback_Tokenkeg",
		},
		{
			options:  Options{Format: FormatCSV, MarketFilter: "abc"},
			expected: "events_all_abc",
		},
	}

	for _, tt := range tests {
		filename := exporter.generateFilename(tt.options)
		if !strings.HasPrefix(filename, tt.expected) {
			t.Errorf("Expected filename to start with %s, got %s", tt.expected, filename)
		}

		expectedExt := "." + string(tt.options.Format)
		if !strings.HasSuffix(filename, expectedExt) {
			t.Errorf("Expected filename to end with %s, got %s", expectedExt, filename)
		}
	}
}

// generateTestEvents returns six events over two markets within the last hour.
func generateTestEvents() []events.Event {
	now := time.Now()
	return []events.Event{
		&events.SwapEvent{
			BaseEvent:   events.NewBase(events.SwapExecuted, now.Add(-59*time.Minute)),
			User:        buyer,
			Market:      marketA,
			Direction:   events.DirectionBuy,
			BaseAmount:  100,
			QuoteAmount: 100_000,
			CreatorFee:  1000,
			ProtocolFee: 4050,
			ReferralFee: 450,
		},
		&events.PaymentEvent{
			BaseEvent:   events.NewBase(events.PaymentReceived, now.Add(-60*time.Minute)),
			User:        buyer,
			Market:      marketA,
			QuoteAmount: 100_000,
			BaseAmount:  100,
		},
		&events.SwapEvent{
			BaseEvent:   events.NewBase(events.SwapExecuted, now.Add(-40*time.Minute)),
			User:        buyer,
			Market:      marketB,
			Direction:   events.DirectionBuy,
			BaseAmount:  200,
			QuoteAmount: 200_000,
			CreatorFee:  2000,
			ProtocolFee: 8100,
			ReferralFee: 900,
		},
		&events.BuybackEvent{
			BaseEvent:     events.NewBase(events.BuybackExecuted, now.Add(-30*time.Minute)),
			Market:        marketB,
			LamportsSpent: 40_000,
			TokensBought:  40,
		},
		&events.ReflectionClaimedEvent{
			BaseEvent: events.NewBase(events.ReflectionClaimed, now.Add(-20*time.Minute)),
			Market:    marketA,
			Holder:    buyer,
			Amount:    10,
		},
		&events.MigrationEvent{
			BaseEvent:   events.NewBase(events.MarketMigrated, now.Add(-5*time.Minute)),
			Market:      marketA,
			TriggeredBy: buyer,
			CreatorPaid: 1000,
		},
	}
}

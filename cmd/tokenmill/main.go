// cmd/tokenmill/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/config"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/export"
	"github.com/rovshanmuradov/tokenmill/internal/node"
	"github.com/rovshanmuradov/tokenmill/internal/report"
	"github.com/rovshanmuradov/tokenmill/internal/utils/logger"
)

const usage = `usage: tokenmill [flags] <serve|simulate>

  serve     run the market node until interrupted
  simulate  run a scripted market lifecycle and print a summary

flags:
`

func main() {
	configPath := flag.String("config", "", "path to config file (json, yaml or toml)")
	exportDir := flag.String("export", "", "write the event history to this directory")
	exportFormat := flag.String("format", string(export.FormatCSV), "export format: csv or json")
	buyers := flag.Int("buyers", node.DefaultScenario().Buyers, "simulated buyers")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command != "serve" && command != "simulate" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, log, *exportDir, export.Format(*exportFormat), *buyers); err != nil {
		log.Error("tokenmill failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, log *logger.Logger, exportDir string, format export.Format, buyers int) (err error) {
	var opts []node.Option
	if command == "simulate" || exportDir != "" {
		opts = append(opts, node.WithJournal())
	}
	runner := node.NewRunner(cfg, log.WithComponent("node"), opts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), node.DefaultShutdownTimeout)
		defer cancel()
		if shutdownErr := runner.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	if err := runner.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	switch command {
	case "serve":
		log.Info("Market node running, press Ctrl+C to stop")
		if err := runner.Run(ctx); err != nil {
			return err
		}
	case "simulate":
		end := log.TrackPerformance("simulate")
		sc := node.DefaultScenario()
		sc.Buyers = buyers
		rep, err := node.Simulate(ctx, runner.Engine(), runner.Runtime(), cfg.Protocol, sc, log.WithOperation("simulate"))
		end()
		if err != nil {
			return err
		}
		fmt.Println(report.Render(rep, 120))
	}

	if exportDir == "" {
		return nil
	}
	// flush queued events into the journal before exporting
	if err := runner.Shutdown(context.Background()); err != nil {
		return err
	}
	return exportEvents(runner.Journal().Events(), exportDir, format, log.Logger)
}

func exportEvents(evs []events.Event, dir string, format export.Format, log *zap.Logger) error {
	exporter := export.NewExporter(log)
	path, err := exporter.Export(evs, export.Options{Format: format, OutputDir: dir})
	if err != nil {
		return err
	}
	if _, err := exporter.ExportDailyReport(evs, time.Now(), dir); err != nil {
		return err
	}
	fmt.Printf("events exported to %s\n", path)
	return nil
}

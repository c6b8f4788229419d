package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/raykavin/stopkeep"
	"github.com/raykavin/stopkeep/advisor"
	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/replay"
)

const (
	dateLayout = "2006-01-02"
)

// Command line flags
var (
	// Run command flags
	configFile string

	// Download command flags
	symbol     string
	days       int
	startDate  string
	endDate    string
	timeframe  string
	outputFile string

	// Replay command flags
	replayInput    string
	replayStop     string
	replayDistance int64
	replayEvery    string
	replayProgress bool

	// Advise command flags
	adviseInput      string
	advisePeriod     int
	adviseMultiplier float64
)

func main() {
	godotenv.Load()

	// Create root command
	rootCmd := &cobra.Command{
		Use:     "stopkeep",
		Short:   "Trailing stop keeper and tooling",
		Version: "1.0.0",
	}

	// Add commands
	rootCmd.AddCommand(buildRunCmd())
	rootCmd.AddCommand(buildDownloadCmd())
	rootCmd.AddCommand(buildReplayCmd())
	rootCmd.AddCommand(buildAdviseCmd())

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keeper with its configured surfaces",
		RunE:  runService,
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Settings file (YAML)")

	return runCmd
}

func runService(cmd *cobra.Command, args []string) error {
	settings := core.DefaultSettings()
	if configFile != "" {
		var err error
		settings, err = core.LoadSettings(configFile)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	service, err := stopkeep.New(ctx, settings)
	if err != nil {
		return err
	}

	return service.Run(ctx)
}

func buildDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical candle data",
		RunE:  runDownload,
	}

	// Add flags
	downloadCmd.Flags().StringVarP(&symbol, "symbol", "p", "", "Market symbol (e.g. ETHUSDT)")
	downloadCmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to download (default 30 days)")
	downloadCmd.Flags().StringVarP(&startDate, "start", "s", "", "Start date (e.g. 2024-01-01)")
	downloadCmd.Flags().StringVarP(&endDate, "end", "e", "", "End date (e.g. 2024-06-30)")
	downloadCmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "Timeframe (e.g. 1h)")
	downloadCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (e.g. ./eth.csv)")

	// Required flags
	downloadCmd.MarkFlagRequired("symbol")
	downloadCmd.MarkFlagRequired("timeframe")
	downloadCmd.MarkFlagRequired("output")

	return downloadCmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	options, err := buildDownloadOptions()
	if err != nil {
		return err
	}

	// Public kline data needs no credentials
	client := binance.NewClient("", "")

	return replay.NewDownloader(client, stopkeep.DefaultLog).Download(
		cmd.Context(),
		symbol,
		timeframe,
		outputFile,
		options...,
	)
}

func buildDownloadOptions() ([]replay.Option, error) {
	var options []replay.Option

	// Add days option if specified
	if days > 0 {
		options = append(options, replay.WithDays(days))
	}

	// Handle date range options
	if startDate != "" || endDate != "" {
		// Both must be provided together
		if startDate == "" || endDate == "" {
			return nil, fmt.Errorf("start and end dates must be provided together")
		}

		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date format: %w", err)
		}

		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format: %w", err)
		}

		options = append(options, replay.WithInterval(start, end))
	}

	return options, nil
}

func buildReplayCmd() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded candles through the engine",
		RunE:  runReplay,
	}

	replayCmd.Flags().StringVarP(&replayInput, "input", "i", "", "Candle CSV file (e.g. ./eth.csv)")
	replayCmd.Flags().StringVar(&replayStop, "stop", "", "Initial stop price (default derived from the first close)")
	replayCmd.Flags().Int64Var(&replayDistance, "distance", 0, "Trailing distance in basis points")
	replayCmd.Flags().StringVar(&replayEvery, "every", "", "Minimum interval between stop updates (e.g. 1h)")
	replayCmd.Flags().BoolVar(&replayProgress, "progress", true, "Render a progress bar")

	replayCmd.MarkFlagRequired("input")
	replayCmd.MarkFlagRequired("distance")

	return replayCmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	candles, err := replay.LoadCSV(replayInput)
	if err != nil {
		return err
	}

	config := replay.Config{
		DistanceBps:  replayDistance,
		ShowProgress: replayProgress,
	}
	if replayStop != "" {
		if config.InitialStop, err = core.ParsePrice(replayStop); err != nil {
			return fmt.Errorf("invalid stop price: %w", err)
		}
	}
	if replayEvery != "" {
		every, err := core.ParseDuration(replayEvery)
		if err != nil {
			return fmt.Errorf("invalid update interval: %w", err)
		}
		config.UpdateEvery = every.Std()
	}

	result, err := replay.Run(cmd.Context(), candles, config, stopkeep.DefaultLog)
	if err != nil {
		return err
	}

	result.Summary(os.Stdout)
	return nil
}

func buildAdviseCmd() *cobra.Command {
	adviseCmd := &cobra.Command{
		Use:   "advise",
		Short: "Suggest a trailing distance from recorded volatility",
		RunE:  runAdvise,
	}

	adviseCmd.Flags().StringVarP(&adviseInput, "input", "i", "", "Candle CSV file (e.g. ./eth.csv)")
	adviseCmd.Flags().IntVar(&advisePeriod, "period", advisor.DefaultPeriod, "ATR lookback in candles")
	adviseCmd.Flags().Float64Var(&adviseMultiplier, "multiplier", advisor.DefaultMultiplier, "ATR multiplier")

	adviseCmd.MarkFlagRequired("input")

	return adviseCmd
}

func runAdvise(cmd *cobra.Command, args []string) error {
	candles, err := replay.LoadCSV(adviseInput)
	if err != nil {
		return err
	}

	suggestion, err := advisor.Suggest(candles, advisePeriod, adviseMultiplier)
	if err != nil {
		return err
	}

	fmt.Printf("ATR(%d):     %.4f\n", suggestion.Period, suggestion.ATR)
	fmt.Printf("Last close: %.4f\n", suggestion.LastClose)
	fmt.Printf("Volatility: %.2f %%\n", suggestion.Volatility*100)
	fmt.Printf("Distance:   %d bps (%.1fx ATR)\n", suggestion.DistanceBps, suggestion.Multiplier)
	return nil
}

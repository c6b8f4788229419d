package replay

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/schollz/progressbar/v3"
	"github.com/xhit/go-str2duration/v2"

	"github.com/raykavin/stopkeep/core"
)

const batchSize = 500

// Downloader fetches historical candle data for replay runs.
type Downloader struct {
	client *binance.Client
	log    core.Logger
}

// NewDownloader creates a new downloader backed by a Binance client.
func NewDownloader(client *binance.Client, log core.Logger) Downloader {
	return Downloader{
		client: client,
		log:    log,
	}
}

// Parameters defines the time range for data download
type Parameters struct {
	Start time.Time
	End   time.Time
}

// Option is a function type for configuring download parameters
type Option func(*Parameters)

// WithInterval sets specific start and end times for the download
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays sets the download period to a specific number of days from now
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = time.Now().AddDate(0, 0, -days)
		parameters.End = time.Now()
	}
}

// calculateCandleCount determines the number of candles in the given timeframe
func calculateCandleCount(start, end time.Time, timeframe string) (int, time.Duration, error) {
	totalDuration := end.Sub(start)
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}
	return int(totalDuration / interval), interval, nil
}

// Download fetches candle data from Binance and saves it to a CSV file
// loadable by LoadCSV.
func (d Downloader) Download(ctx context.Context, symbol, timeframe, outputPath string, options ...Option) error {
	recordFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer recordFile.Close()

	parameters := initializeParameters()
	for _, option := range options {
		option(parameters)
	}
	normalizeTimeParameters(parameters)

	candleCount, interval, err := calculateCandleCount(parameters.Start, parameters.End, timeframe)
	if err != nil {
		return err
	}
	candleCount++

	d.log.Infof("Downloading %d candles of %s for %s", candleCount, timeframe, symbol)

	writer := csv.NewWriter(recordFile)
	progressBar := progressbar.Default(int64(candleCount))

	if err := writer.Write(csvHeaders); err != nil {
		return err
	}

	missingCandles, err := d.downloadCandleBatches(
		ctx,
		symbol,
		timeframe,
		parameters.Start,
		parameters.End,
		interval,
		writer,
		progressBar,
	)
	if err != nil {
		return err
	}

	if err = progressBar.Close(); err != nil {
		d.log.Warnf("Failed to close progress bar: %s", err.Error())
	}

	if missingCandles > 0 {
		d.log.Warnf("%d missing candles", missingCandles)
	}

	writer.Flush()
	d.log.Infof("Done!")
	return writer.Error()
}

// initializeParameters creates default parameters for the last month
func initializeParameters() *Parameters {
	now := time.Now()
	return &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}
}

// normalizeTimeParameters adjusts time parameters to day boundaries
func normalizeTimeParameters(parameters *Parameters) {
	parameters.Start = time.Date(
		parameters.Start.Year(),
		parameters.Start.Month(),
		parameters.Start.Day(),
		0, 0, 0, 0, time.UTC,
	)

	now := time.Now()
	if now.Sub(parameters.End) > 0 {
		parameters.End = time.Date(
			parameters.End.Year(),
			parameters.End.Month(),
			parameters.End.Day(),
			0, 0, 0, 0, time.UTC,
		)
	} else {
		parameters.End = now
	}
}

// downloadCandleBatches downloads candles in batches and writes them to CSV
func (d Downloader) downloadCandleBatches(
	ctx context.Context,
	symbol string,
	timeframe string,
	start time.Time,
	end time.Time,
	interval time.Duration,
	writer *csv.Writer,
	progressBar *progressbar.ProgressBar,
) (int, error) {
	missingCandles := 0

	for batchStart := start; batchStart.Before(end); batchStart = batchStart.Add(interval * batchSize) {
		batchEnd := calculateBatchEnd(batchStart, interval, end)
		isLastBatch := batchEnd.Equal(end)

		candles, err := d.candlesByPeriod(ctx, symbol, timeframe, batchStart, batchEnd)
		if err != nil {
			return missingCandles, err
		}

		for _, candle := range candles {
			if err := writeCandle(writer, candle); err != nil {
				return missingCandles, err
			}
		}

		if !isLastBatch && len(candles) < batchSize {
			missingCandles += batchSize - len(candles)
		}

		if err := progressBar.Add(len(candles)); err != nil {
			d.log.Warnf("Failed to update progress bar: %s", err.Error())
		}
	}

	return missingCandles, nil
}

// calculateBatchEnd determines the end time for a batch
func calculateBatchEnd(batchStart time.Time, interval time.Duration, totalEnd time.Time) time.Time {
	potentialEnd := batchStart.Add(interval * batchSize)

	// Subtract 1 second to avoid overlapping with next batch's start
	if potentialEnd.Before(totalEnd) {
		return potentialEnd.Add(-1 * time.Second)
	}

	return totalEnd
}

// candlesByPeriod gets candles for a symbol within a time range
func (d Downloader) candlesByPeriod(ctx context.Context, symbol, timeframe string,
	start, end time.Time) ([]Candle, error) {

	klineService := d.client.NewKlinesService()

	data, err := klineService.Symbol(symbol).
		Interval(timeframe).
		StartTime(start.UnixNano() / int64(time.Millisecond)).
		EndTime(end.UnixNano() / int64(time.Millisecond)).
		Do(ctx)

	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(data))
	for _, k := range data {
		candles = append(candles, convertKlineToCandle(*k))
	}

	return candles, nil
}

// convertKlineToCandle converts a Binance kline to a replay Candle
func convertKlineToCandle(k binance.Kline) Candle {
	candle := Candle{
		Time: time.Unix(0, k.OpenTime*int64(time.Millisecond)),
	}

	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)

	return candle
}

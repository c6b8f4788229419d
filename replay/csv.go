package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrInsufficientData is returned when there are not enough candles to
// drive a replay.
var ErrInsufficientData = errors.New("insufficient data")

// CSV header names
var csvHeaders = []string{"time", "open", "close", "low", "high", "volume"}

// defaultHeaderMap defines the standard CSV column mapping for files
// without a header row
var defaultHeaderMap = map[string]int{
	"time": 0, "open": 1, "close": 2, "low": 3, "high": 4, "volume": 5,
}

// LoadCSV reads candles from a CSV file. Files may carry a header row
// naming the columns; headerless files are read in the default order.
func LoadCSV(file string) ([]Candle, error) {
	csvFile, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer csvFile.Close()

	csvLines, err := csv.NewReader(csvFile).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read candle file: %w", err)
	}
	if len(csvLines) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInsufficientData, file)
	}

	headerMap, hasCustomHeaders := parseHeaders(csvLines[0])
	if hasCustomHeaders {
		csvLines = csvLines[1:]
	}

	candles := make([]Candle, 0, len(csvLines))
	for _, line := range csvLines {
		candle, err := parseCandleFromLine(line, headerMap)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// parseHeaders analyzes CSV headers and returns an index map
func parseHeaders(headers []string) (headerMap map[string]int, hasCustomHeaders bool) {
	// Check if first element is a number (not a header)
	if _, err := strconv.Atoi(headers[0]); err == nil {
		return defaultHeaderMap, false
	}

	headerMap = make(map[string]int)
	for index, header := range headers {
		headerMap[header] = index
	}

	return headerMap, true
}

// parseCandleFromLine parses a CSV line and creates a candle
func parseCandleFromLine(line []string, headerMap map[string]int) (Candle, error) {
	timestamp, err := strconv.Atoi(line[headerMap["time"]])
	if err != nil {
		return Candle{}, err
	}

	candle := Candle{
		Time: time.Unix(int64(timestamp), 0).UTC(),
	}

	if candle.Open, err = strconv.ParseFloat(line[headerMap["open"]], 64); err != nil {
		return Candle{}, err
	}

	if candle.Close, err = strconv.ParseFloat(line[headerMap["close"]], 64); err != nil {
		return Candle{}, err
	}

	if candle.Low, err = strconv.ParseFloat(line[headerMap["low"]], 64); err != nil {
		return Candle{}, err
	}

	if candle.High, err = strconv.ParseFloat(line[headerMap["high"]], 64); err != nil {
		return Candle{}, err
	}

	if candle.Volume, err = strconv.ParseFloat(line[headerMap["volume"]], 64); err != nil {
		return Candle{}, err
	}

	return candle, nil
}

// WriteCSV writes candles with the standard header row.
func WriteCSV(path string, candles []Candle) error {
	recordFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer recordFile.Close()

	writer := csv.NewWriter(recordFile)
	if err := writer.Write(csvHeaders); err != nil {
		return err
	}

	for _, candle := range candles {
		if err := writeCandle(writer, candle); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeCandle(writer *csv.Writer, candle Candle) error {
	return writer.Write([]string{
		strconv.FormatInt(candle.Time.Unix(), 10),
		strconv.FormatFloat(candle.Open, 'f', -1, 64),
		strconv.FormatFloat(candle.Close, 'f', -1, 64),
		strconv.FormatFloat(candle.Low, 'f', -1, 64),
		strconv.FormatFloat(candle.High, 'f', -1, 64),
		strconv.FormatFloat(candle.Volume, 'f', -1, 64),
	})
}

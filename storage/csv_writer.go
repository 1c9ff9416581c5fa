package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"autoria-scraper/models"
)

// CSVWriter renders listings as CSV rows with the cars table's columns.
type CSVWriter struct {
	w *csv.Writer
}

func NewCSVWriter(out io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(out)}
}

func (w *CSVWriter) WriteHeader() error {
	return w.w.Write(listingColumns)
}

func (w *CSVWriter) Write(l models.Listing) error {
	return w.w.Write([]string{
		l.URL,
		l.Title,
		strconv.Itoa(l.PriceUSD),
		strconv.Itoa(l.Odometer),
		l.Username,
		strconv.FormatInt(l.PhoneNumber, 10),
		l.ImageURL,
		strconv.Itoa(l.ImagesCount),
		l.CarNumber,
		l.CarVIN,
		l.DatetimeFound.UTC().Format(time.RFC3339),
	})
}

// Flush must be called or data stays in the buffer.
func (w *CSVWriter) Flush() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}

func writeCSVDump(ctx context.Context, out io.Writer, source ListingSource) (int, error) {
	writer := NewCSVWriter(out)
	if err := writer.WriteHeader(); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	rows := 0
	err := source.StreamListings(ctx, func(l models.Listing) error {
		rows++
		return writer.Write(l)
	})
	if err != nil {
		return rows, fmt.Errorf("write csv dump: %w", err)
	}
	return rows, writer.Flush()
}

package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"autoria-scraper/models"
	"autoria-scraper/utils"
)

// DumpTimeLayout names dump files, e.g. dump_2025-01-31_18-04-05.sql.
const DumpTimeLayout = "2006-01-02_15-04-05"

// ListingSource streams every stored listing.
type ListingSource interface {
	StreamListings(ctx context.Context, fn func(models.Listing) error) error
}

// Archiver copies a finished dump somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, localPath string) (string, error)
}

// Dumper writes a data-only snapshot of the cars table, one file per run.
type Dumper struct {
	source   ListingSource
	dir      string
	format   string
	archiver Archiver
	now      func() time.Time
}

func NewDumper(source ListingSource, dir, format string, archiver Archiver) *Dumper {
	return &Dumper{
		source:   source,
		dir:      dir,
		format:   format,
		archiver: archiver,
		now:      time.Now,
	}
}

// Dump writes the snapshot and returns its local path. The file is removed
// again if writing fails part way.
func (d *Dumper) Dump(ctx context.Context) (string, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("could not create dumps dir: %w", err)
	}

	ext := "sql"
	if d.format == "csv" {
		ext = "csv"
	}
	path := filepath.Join(d.dir, fmt.Sprintf("dump_%s.%s", d.now().Format(DumpTimeLayout), ext))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("could not create dump file: %w", err)
	}

	var rows int
	if ext == "csv" {
		rows, err = writeCSVDump(ctx, file, d.source)
	} else {
		rows, err = writeSQLDump(ctx, file, d.source, d.now())
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	utils.Info("Dumped %d rows → %s", rows, path)

	if d.archiver != nil {
		key, err := d.archiver.Archive(ctx, path)
		if err != nil {
			// The local dump is complete; a failed upload is reported but
			// does not invalidate the run.
			utils.Error("Failed to archive dump %s: %v", path, err)
		} else {
			utils.Success("Dump archived as %s", key)
		}
	}
	return path, nil
}

func writeSQLDump(ctx context.Context, w io.Writer, source ListingSource, at time.Time) (int, error) {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "--\n-- Data-only dump of public.cars\n-- Taken %s\n--\n\n", at.Format(time.RFC3339))

	prefix := "INSERT INTO public.cars (id, " + strings.Join(listingColumns, ", ") + ") VALUES ("
	rows := 0
	var maxID int64
	err := source.StreamListings(ctx, func(l models.Listing) error {
		values := []string{
			strconv.FormatInt(l.ID, 10),
			quoteLiteral(l.URL),
			quoteLiteral(l.Title),
			strconv.Itoa(l.PriceUSD),
			strconv.Itoa(l.Odometer),
			quoteLiteral(l.Username),
			strconv.FormatInt(l.PhoneNumber, 10),
			quoteLiteral(l.ImageURL),
			strconv.Itoa(l.ImagesCount),
			quoteLiteral(l.CarNumber),
			quoteLiteral(l.CarVIN),
			quoteLiteral(l.DatetimeFound.UTC().Format("2006-01-02 15:04:05.999999-07")),
		}
		rows++
		maxID = max(maxID, l.ID)
		_, err := bw.WriteString(prefix + strings.Join(values, ", ") + ");\n")
		return err
	})
	if err != nil {
		return rows, fmt.Errorf("write sql dump: %w", err)
	}
	// Restored rows keep their ids, so the sequence must move past them.
	if rows > 0 {
		fmt.Fprintf(bw, "\nSELECT pg_catalog.setval('public.cars_id_seq', %d, true);\n", maxID)
	}
	fmt.Fprintf(bw, "\n--\n-- %d rows\n--\n", rows)
	if err := bw.Flush(); err != nil {
		return rows, fmt.Errorf("flush sql dump: %w", err)
	}
	return rows, nil
}

// quoteLiteral renders s as a standard-conforming SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoria-scraper/models"
)

type fakeSource struct {
	listings []models.Listing
	err      error
}

func (s *fakeSource) StreamListings(_ context.Context, fn func(models.Listing) error) error {
	for _, l := range s.listings {
		if err := fn(l); err != nil {
			return err
		}
	}
	return s.err
}

type fakeArchiver struct {
	paths []string
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, localPath string) (string, error) {
	a.paths = append(a.paths, localPath)
	if a.err != nil {
		return "", a.err
	}
	return "dumps/" + filepath.Base(localPath), nil
}

var dumpTime = time.Date(2025, 1, 31, 18, 4, 5, 0, time.UTC)

func sampleListings() []models.Listing {
	found := time.Date(2025, 1, 31, 17, 0, 0, 0, time.UTC)
	return []models.Listing{
		{
			ID: 1, URL: "https://auto.ria.com/uk/auto_bmw_x5_38291054.html", Title: "BMW X5 2018",
			PriceUSD: 35500, Odometer: 120000, Username: "avtosalon-kyiv", PhoneNumber: 380671234567,
			ImageURL: "https://cdn.riastatic.com/1.jpg", ImagesCount: 25, CarNumber: "AA1234BB",
			CarVIN: "WBAKS410500A12345", DatetimeFound: found,
		},
		{
			ID: 2, URL: "https://auto.ria.com/uk/auto_vw_golf_38291055.html", Title: "Volkswagen Golf 'GTI'",
			PriceUSD: 9900, Odometer: 210000, Username: "Олександр", PhoneNumber: 380501112233,
			ImageURL: "https://cdn.riastatic.com/2.jpg", ImagesCount: 12, CarNumber: models.NotAvailable,
			CarVIN: models.NotAvailable, DatetimeFound: found,
		},
	}
}

func newTestDumper(t *testing.T, source ListingSource, format string, archiver Archiver) (*Dumper, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "dumps")
	d := NewDumper(source, dir, format, archiver)
	d.now = func() time.Time { return dumpTime }
	return d, dir
}

func TestDumper_Dump(t *testing.T) {
	t.Parallel()

	t.Run("writes one INSERT per row into a timestamped file", func(t *testing.T) {
		t.Parallel()

		d, dir := newTestDumper(t, &fakeSource{listings: sampleListings()}, "sql", nil)
		path, err := d.Dump(context.Background())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "dump_2025-01-31_18-04-05.sql"), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		content := string(data)

		assert.Equal(t, 2, strings.Count(content, "INSERT INTO public.cars (id, url, title, price_usd, odometer, username, phone_number, image_url, images_count, car_number, car_vin, datetime_found) VALUES ("))
		assert.Contains(t, content, "VALUES (1, 'https://auto.ria.com/uk/auto_bmw_x5_38291054.html', ")
		assert.Contains(t, content, "VALUES (2, 'https://auto.ria.com/uk/auto_vw_golf_38291055.html', ")
		assert.Contains(t, content, "SELECT pg_catalog.setval('public.cars_id_seq', 2, true);")
		assert.Less(t, strings.LastIndex(content, "INSERT"), strings.Index(content, "setval"))
		assert.Contains(t, content, "'BMW X5 2018', 35500, 120000, 'avtosalon-kyiv', 380671234567,")
		assert.Contains(t, content, "'Volkswagen Golf ''GTI'''")
		assert.Contains(t, content, "'N/A', 'N/A', '2025-01-31 17:00:00+00');")
		assert.NotContains(t, content, "CREATE TABLE")
	})

	t.Run("empty table produces a valid dump", func(t *testing.T) {
		t.Parallel()

		d, _ := newTestDumper(t, &fakeSource{}, "sql", nil)
		path, err := d.Dump(context.Background())
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "INSERT")
		assert.NotContains(t, string(data), "setval")
		assert.Contains(t, string(data), "-- 0 rows")
	})

	t.Run("csv format writes a header and one record per row", func(t *testing.T) {
		t.Parallel()

		d, dir := newTestDumper(t, &fakeSource{listings: sampleListings()}, "csv", nil)
		path, err := d.Dump(context.Background())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "dump_2025-01-31_18-04-05.csv"), path)

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, listingColumns, records[0])
		assert.Equal(t, "Volkswagen Golf 'GTI'", records[2][1])
		assert.Equal(t, "380501112233", records[2][5])
		assert.Equal(t, "2025-01-31T17:00:00Z", records[1][10])
	})

	t.Run("read failure removes the partial file", func(t *testing.T) {
		t.Parallel()

		source := &fakeSource{listings: sampleListings(), err: models.ErrStorageConnectivity}
		d, dir := newTestDumper(t, source, "sql", nil)

		_, err := d.Dump(context.Background())
		require.ErrorIs(t, err, models.ErrStorageConnectivity)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("finished dump is archived", func(t *testing.T) {
		t.Parallel()

		archiver := &fakeArchiver{}
		d, _ := newTestDumper(t, &fakeSource{listings: sampleListings()}, "sql", archiver)

		path, err := d.Dump(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{path}, archiver.paths)
	})

	t.Run("archive failure keeps the local dump", func(t *testing.T) {
		t.Parallel()

		archiver := &fakeArchiver{err: errors.New("bucket unreachable")}
		d, _ := newTestDumper(t, &fakeSource{listings: sampleListings()}, "sql", archiver)

		path, err := d.Dump(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)
	})
}

func TestQuoteLiteral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "'plain'", quoteLiteral("plain"))
	assert.Equal(t, "'O''Brien'", quoteLiteral("O'Brien"))
	assert.Equal(t, "''", quoteLiteral(""))
}

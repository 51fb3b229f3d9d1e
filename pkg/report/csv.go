package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/roffe/udsfuzz/pkg/fuzz"
)

const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

func NewCSVWriter(f *os.File) *CSVWriter {
	return &CSVWriter{
		file: f,
		cw:   csv.NewWriter(f),
	}
}

// CSVWriter exports captured seeds, one row per seed.
type CSVWriter struct {
	file          *os.File
	headerWritten bool
	cw            *csv.Writer
	index         int
}

func (c *CSVWriter) Write(seed fuzz.Seed, ts time.Time, delay time.Duration) error {
	if !c.headerWritten {
		if err := c.writeHeader(); err != nil {
			return err
		}
	}
	c.index++
	return c.cw.Write([]string{
		strconv.Itoa(c.index),
		ts.Format(TimeFormat),
		seed.String(),
		strconv.FormatFloat(delay.Seconds(), 'f', 3, 64),
	})
}

// WriteLog writes every seed of log. delay is recorded on each row.
func (c *CSVWriter) WriteLog(log *fuzz.SeedLog, delay func(i int) time.Duration) error {
	for i, s := range log.Seeds {
		var ts time.Time
		if i < len(log.Times) {
			ts = log.Times[i]
		}
		var d time.Duration
		if delay != nil {
			d = delay(i)
		}
		if err := c.Write(s, ts, d); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVWriter) writeHeader() error {
	c.headerWritten = true
	return c.cw.Write([]string{"Index", "Time", "Seed", "Delay"})
}

func (c *CSVWriter) Close() error {
	c.cw.Flush()
	if err := c.cw.Error(); err != nil {
		c.file.Close()
		return err
	}
	if err := c.file.Sync(); err != nil {
		return err
	}
	return c.file.Close()
}

// ExportSeeds writes log to filename.
func ExportSeeds(filename string, log *fuzz.SeedLog, delay func(i int) time.Duration) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	cw := NewCSVWriter(f)
	if err := cw.WriteLog(log, delay); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/roffe/udsfuzz/pkg/fuzz"
	"github.com/roffe/udsfuzz/pkg/scan"
	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestDiscoveryTable(t *testing.T) {
	var buf bytes.Buffer
	Discovery(&buf, []scan.AddressPair{{Request: 0x7E0, Response: 0x7E8}, {Request: 0x700, Response: 0x701}})
	want := "\nFound diagnostics server listening at 2 address pair(s)\n" +
		"+------------+------------+\n" +
		"| CLIENT ID  | SERVER ID  |\n" +
		"+------------+------------+\n" +
		"| 0x000007e0 | 0x000007e8 |\n" +
		"| 0x00000700 | 0x00000701 |\n" +
		"+------------+------------+\n"
	assert.Equal(t, want, buf.String())
}

func TestDiscoveryEmpty(t *testing.T) {
	var buf bytes.Buffer
	Discovery(&buf, nil)
	assert.Equal(t, "Diagnostics service could not be found.\n", buf.String())
}

func TestServices(t *testing.T) {
	var buf bytes.Buffer
	Services(&buf, []byte{0x10, 0x22})
	assert.Equal(t, "Supported service 0x10: DIAGNOSTIC_SESSION_CONTROL\nSupported service 0x22: READ_DATA_BY_IDENTIFIER\n", buf.String())
}

func TestSeeds(t *testing.T) {
	log := &fuzz.SeedLog{Seeds: []fuzz.Seed{{0x01, 0x02}, {0x01, 0x02}, {0xFF}}}
	var buf bytes.Buffer
	Seeds(&buf, log)
	assert.Equal(t, "Captured 3 seed(s)\n"+
		"    1 0102\n"+
		"    2 0102\n"+
		"    3 ff\n"+
		"Duplicate seeds found: 1\n"+
		"  0102 seen 2 times\n", buf.String())
}

func TestDuplicatesNone(t *testing.T) {
	var buf bytes.Buffer
	Duplicates(&buf, nil)
	assert.Equal(t, "No duplicate seeds found.\n", buf.String())
}

func TestDelay(t *testing.T) {
	var buf bytes.Buffer
	Delay(&buf, &fuzz.DelayResult{Found: true, Passes: 5, Delay: 15 * time.Millisecond})
	assert.Equal(t, "Target seed reproduced after 5 pass(es) with delay 0.015s\n", buf.String())
}

func TestExportSeeds(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "seeds.csv")
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	log := &fuzz.SeedLog{
		Seeds: []fuzz.Seed{{0xAA}, {0xBB}},
		Times: []time.Time{ts, ts.Add(time.Second)},
	}
	delays := []time.Duration{10 * time.Millisecond, 11 * time.Millisecond}
	require.NoError(t, ExportSeeds(filename, log, func(i int) time.Duration { return delays[i] }))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Index", "Time", "Seed", "Delay"},
		{"1", "2024-05-01T12:00:00.000Z", "aa", "0.010"},
		{"2", "2024-05-01T12:00:01.000Z", "bb", "0.011"},
	}, records)
}

func TestECUReset(t *testing.T) {
	tests := []struct {
		name string
		resp *uds.Response
		want string
	}{
		{"none", nil, "No response\n"},
		{"negative", &uds.Response{ServiceID: uds.ECU_RESET, NRC: uds.CONDITIONS_NOT_CORRECT}, "Negative response: CONDITIONS_NOT_CORRECT (0x22)\n"},
		{"short", &uds.Response{ServiceID: uds.ECU_RESET, Positive: true}, "Short positive response, reset type missing\n"},
		{"mismatch", &uds.Response{ServiceID: uds.ECU_RESET, Positive: true, Payload: []byte{0x03}}, "Reset type mismatch: sent 0x01, got 0x03\n"},
		{"extra", &uds.Response{ServiceID: uds.ECU_RESET, Positive: true, Payload: []byte{0x01, 0x0F}}, "Reset successful, additional data: 0F\n"},
		{"ok", &uds.Response{ServiceID: uds.ECU_RESET, Positive: true, Payload: []byte{0x01}}, "Reset successful\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ECUReset(&buf, uds.HARD_RESET, tt.resp)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

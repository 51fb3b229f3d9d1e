package fuzz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScript(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Script
		wantErr bool
	}{
		{name: "pairs", in: "1003 2705", want: Script{{0x10, 0x03}, {0x27, 0x05}}},
		{name: "packed", in: "100311022701", want: Script{{0x10, 0x03}, {0x11, 0x02}, {0x27, 0x01}}},
		{name: "spaced bytes", in: " 10 03\t27 05\n", want: Script{{0x10, 0x03}, {0x27, 0x05}}},
		{name: "upper case", in: "10FF", want: Script{{0x10, 0xFF}}},
		{name: "unknown service kept", in: "2201", want: Script{{0x22, 0x01}}},
		{name: "empty", in: "  ", wantErr: true},
		{name: "odd length", in: "100", wantErr: true},
		{name: "half pair", in: "100327", wantErr: true},
		{name: "not hex", in: "10zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScript(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrScript)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStepKind(t *testing.T) {
	assert.Equal(t, StepSession, Step{0x10, 0x03}.Kind())
	assert.Equal(t, StepSeed, Step{0x27, 0x05}.Kind())
	assert.Equal(t, StepReset, Step{0x11, 0x01}.Kind())
	assert.Equal(t, StepUnknown, Step{0x3E, 0x00}.Kind())
	assert.Equal(t, "seed", StepSeed.String())
}

func TestScriptString(t *testing.T) {
	s := mustScript("100311022701")
	assert.Equal(t, "1003 1102 2701", s.String())
	assert.True(t, s.HasSeedStep())
	assert.False(t, mustScript("1003").HasSeedStep())
}

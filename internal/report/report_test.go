package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/cointie/internal/simulator"
)

func sampleResult() *simulator.Result {
	return &simulator.Result{
		ID:             "3f1c2a9e-0000-4000-8000-000000000001",
		Trials:         2000,
		FlipsPerPlayer: 2000,
		Equal:          25,
		Probability:    0.0125,
		Expected:       0.012613,
		StdError:       0.0025,
		CILow:          0.0076,
		CIHigh:         0.0174,
		ZScore:         -0.05,
		ChiSquared:     1.5,
		Seed:           42,
		Workers:        1,
		BatchSize:      250,
		Elapsed:        1234567 * time.Microsecond,
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.0125, "0.0125"},
		{0, "0.0"},
		{1, "1.0"},
		{0.5, "0.5"},
		{0.0005, "0.0005"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Ratio(tt.in))
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	got, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestWrite_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPlain, sampleResult()))
	assert.Equal(t, "0.0125\n", buf.String())
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleResult()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 0.0125, decoded["probability"])
	assert.Equal(t, float64(2000), decoded["trials"])
	assert.Equal(t, float64(25), decoded["equal"])
	assert.Equal(t, "3f1c2a9e-0000-4000-8000-000000000001", decoded["id"])
}

func TestWrite_Pretty(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPretty, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "coin tie simulation")
	assert.Contains(t, out, "0.01250")
	assert.Contains(t, out, "0.01261")
	assert.Contains(t, out, "[0.00760, 0.01740]")
	assert.Contains(t, out, "-0.05")
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "seed 42, 1 workers")
	assert.Contains(t, out, "1.234s")
	assert.NotContains(t, out, "outside 3σ")
}

func TestWrite_PrettyFlagsOutliers(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	r := sampleResult()
	r.ZScore = 4.2

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPretty, r))
	assert.Contains(t, buf.String(), "+4.20 (outside 3σ)")
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("xml"), sampleResult()))
	assert.Empty(t, buf.String())
}

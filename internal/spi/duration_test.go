package spi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseXSDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "PT30M", want: 30 * time.Minute},
		{in: "PT1H30M", want: 90 * time.Minute},
		{in: "PT45S", want: 45 * time.Second},
		{in: "P1DT2H", want: 26 * time.Hour},
		{in: "PT0S", want: 0},
		{in: "P", wantErr: true},
		{in: "PT", wantErr: true},
		{in: "30M", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseXSDuration(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatXSDuration(t *testing.T) {
	assert.Equal(t, "PT1H30M", FormatXSDuration(90*time.Minute))
	assert.Equal(t, "PT45S", FormatXSDuration(45*time.Second))
	assert.Equal(t, "PT0S", FormatXSDuration(0))
	assert.Equal(t, "PT26H", FormatXSDuration(26*time.Hour))
}

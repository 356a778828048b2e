package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		tz       string
		wantZone string
		wantWarn bool
	}{
		{"empty uses UTC", "", "UTC", false},
		{"explicit UTC", "UTC", "UTC", false},
		{"named zone", "America/Argentina/Buenos_Aires", "America/Argentina/Buenos_Aires", false},
		{"unknown falls back", "Mars/Olympus_Mons", "UTC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			c := New(tt.tz, zap.New(core).Sugar())

			assert.Equal(t, tt.wantZone, c.Location().String())
			assert.Equal(t, tt.wantZone, c.Now().Location().String())
			if tt.wantWarn {
				assert.Equal(t, 1, logs.FilterMessage("Timezone not found, falling back").Len())
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}

func TestFixed(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fixed(at)

	assert.True(t, at.Equal(c.Now()))
	assert.True(t, at.Equal(c.Now()))
}

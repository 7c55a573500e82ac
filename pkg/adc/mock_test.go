package adc

import (
	"errors"
	"testing"
	"time"

	"github.com/itohio/doorbell/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMockConfig() *config.MockConfig {
	return &config.MockConfig{
		Baseline:      0.5,
		NoiseLevel:    0.01,
		RingAmplitude: 0.4,
		RingFrequency: 20,
		RingDuration:  100 * time.Millisecond,
		RingPeriod:    300 * time.Millisecond,
		SampleRate:    time.Millisecond,
		BurstInterval: 5 * time.Millisecond,
	}
}

func TestMock_Ringing(t *testing.T) {
	m := NewMock(testMockConfig(), nil)

	assert.False(t, m.Ringing(0))
	assert.False(t, m.Ringing(299*time.Millisecond))
	assert.True(t, m.Ringing(300*time.Millisecond))
	assert.True(t, m.Ringing(399*time.Millisecond))
	assert.False(t, m.Ringing(400*time.Millisecond))
	assert.True(t, m.Ringing(650*time.Millisecond))
}

func TestMock_GenerateSample_QuietRange(t *testing.T) {
	cfg := testMockConfig()
	m := NewMock(cfg, nil)

	lo := uint16((cfg.Baseline - cfg.NoiseLevel) * MaxReading)
	hi := uint16((cfg.Baseline+cfg.NoiseLevel)*MaxReading) + 1
	for i := 0; i < 250; i++ {
		v := m.generateSample()
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
}

func TestMock_GenerateSample_Clamped(t *testing.T) {
	cfg := testMockConfig()
	cfg.RingAmplitude = 5
	cfg.RingPeriod = time.Millisecond
	cfg.RingDuration = time.Millisecond
	m := NewMock(cfg, nil)

	for i := 0; i < 500; i++ {
		assert.LessOrEqual(t, m.generateSample(), uint16(MaxReading))
	}
}

func TestMock_DeliversIrregularBursts(t *testing.T) {
	m := NewMock(testMockConfig(), nil)
	require.NoError(t, m.Connect())
	defer m.Close()

	buf := make([]uint16, 64)
	total := 0
	var lastTicks uint64
	deadline := time.Now().Add(5 * time.Second)
	for total < 200 && time.Now().Before(deadline) {
		n, err := m.Read(buf, 200*time.Millisecond)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		require.NoError(t, err)
		for _, v := range buf[:n] {
			assert.LessOrEqual(t, v, uint16(MaxReading))
		}
		assert.GreaterOrEqual(t, m.Ticks(), lastTicks)
		lastTicks = m.Ticks()
		total += n
	}

	assert.GreaterOrEqual(t, total, 200)
}

func TestMock_SetLED(t *testing.T) {
	m := NewMock(testMockConfig(), nil)
	assert.Error(t, m.SetLED(255, 0, 0))

	require.NoError(t, m.Connect())
	defer m.Close()

	require.NoError(t, m.SetLED(255, 0, 0))
	r, g, b := m.LED()
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
}

package service

import (
	"testing"
	"time"

	"dugtong/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStreamAlert(t *testing.T) {
	a, err := DecodeStreamAlert(map[string]interface{}{
		"data":      `{"id":"7","title":"O- needed","message":"Gubat district hospital","urgency":"critical","isActive":true}`,
		"timestamp": "1700000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "7", a.ID)
	assert.Equal(t, domain.UrgencyCritical, a.Urgency)

	_, err = DecodeStreamAlert(map[string]interface{}{"timestamp": "1"})
	assert.Error(t, err)
	_, err = DecodeStreamAlert(map[string]interface{}{"data": "{not json"})
	assert.Error(t, err)
	_, err = DecodeStreamAlert(map[string]interface{}{"data": `{"title":"no id"}`})
	assert.Error(t, err)
}

func TestConsumerBackOff_GrowsToCap(t *testing.T) {
	b := consumerBackOff()
	first := b.NextBackOff()
	assert.InDelta(t, float64(time.Second), float64(first), float64(100*time.Millisecond))

	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.NextBackOff()
	}
	assert.NotEqual(t, backoff.Stop, last)
	assert.InDelta(t, float64(30*time.Second), float64(last), float64(3*time.Second))

	b.Reset()
	assert.InDelta(t, float64(time.Second), float64(b.NextBackOff()), float64(100*time.Millisecond))
}

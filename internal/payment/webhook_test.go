package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func succeededPayload() []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"status": "succeeded",
			"amount": 60000,
			"currency": "inr",
			"metadata": {"orderNumber": "RGO2608290001"}
		}}
	}`)
}

func TestParseEvent_ValidSignature(t *testing.T) {
	payload := succeededPayload()
	header := SignPayload(payload, testSecret, time.Now())

	event, err := ParseEvent(payload, header, testSecret, DefaultTolerance)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, "pi_1", event.Data.Object.ID)
	assert.Equal(t, int64(60000), event.Data.Object.Amount)
	assert.Equal(t, "RGO2608290001", event.Data.Object.Metadata["orderNumber"])
}

func TestParseEvent_TamperedPayload(t *testing.T) {
	payload := succeededPayload()
	header := SignPayload(payload, testSecret, time.Now())

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = ' '

	_, err := ParseEvent(tampered, header, testSecret, DefaultTolerance)
	require.True(t, errors.Is(err, ErrInvalidSignature), "got %v", err)
}

func TestParseEvent_WrongSecret(t *testing.T) {
	payload := succeededPayload()
	header := SignPayload(payload, "whsec_other", time.Now())

	_, err := ParseEvent(payload, header, testSecret, DefaultTolerance)
	require.True(t, errors.Is(err, ErrInvalidSignature), "got %v", err)
}

func TestParseEvent_MalformedHeader(t *testing.T) {
	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
		_, err := ParseEvent(succeededPayload(), header, testSecret, DefaultTolerance)
		require.True(t, errors.Is(err, ErrInvalidSignature), "header %q: got %v", header, err)
	}
}

func TestParseEvent_StaleTimestamp(t *testing.T) {
	payload := succeededPayload()
	header := SignPayload(payload, testSecret, time.Now().Add(-time.Hour))

	_, err := ParseEvent(payload, header, testSecret, DefaultTolerance)
	require.True(t, errors.Is(err, ErrInvalidSignature), "got %v", err)
}

func TestParseEvent_MultipleSignatures(t *testing.T) {
	payload := succeededPayload()
	valid := SignPayload(payload, testSecret, time.Now())

	// an extra bogus signature must not break verification
	withExtra := valid + ",v1=deadbeef"
	event, err := ParseEvent(payload, withExtra, testSecret, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}

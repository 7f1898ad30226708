package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_Transitions(t *testing.T) {
	next, err := StatusPending.Accept()
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, next)

	next, err = StatusAccepted.Accept()
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, next, "accept is idempotent")

	_, err = StatusRejected.Accept()
	assert.Error(t, err)

	next, err = StatusPending.Reject()
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, next)

	_, err = StatusAccepted.Reject()
	assert.Error(t, err)
	_, err = StatusRejected.Reject()
	assert.Error(t, err)
}

func TestRequestStatus_Reissue(t *testing.T) {
	for _, s := range []RequestStatus{StatusAccepted, StatusRejected} {
		next, err := s.Reissue()
		require.NoError(t, err)
		assert.Equal(t, StatusPending, next)
	}
	_, err := StatusPending.Reissue()
	assert.Error(t, err)
}

func TestRequestStatus_Resend(t *testing.T) {
	for _, s := range []RequestStatus{StatusPending, StatusRejected} {
		next, err := s.Resend()
		require.NoError(t, err)
		assert.Equal(t, StatusPending, next)
	}
	_, err := StatusAccepted.Resend()
	assert.Error(t, err)
}

func TestRequestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, RequestStatus("pending").Valid())
	assert.False(t, RequestStatus("").Valid())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusRejected.Terminal())
}

package rtmpsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordsConnectPublishAndMessages(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "rtmp://example/live/[stream]"))
	require.NoError(t, r.Publish(ctx, "cam-1"))
	require.NoError(t, r.SendMessage(ctx, Message{Type: TagVideo, Timestamp: 40, Payload: []byte{1, 2, 3}}))
	require.NoError(t, r.SendMessage(ctx, Message{Type: TagAudio, Timestamp: 40, Payload: []byte{4}}))
	require.NoError(t, r.Close())

	assert.Equal(t, "rtmp://example/live/[stream]", r.URL)
	assert.Equal(t, "cam-1", r.StreamName)
	assert.True(t, r.Closed)

	msgs := r.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, TagVideo, msgs[0].Type)
	assert.Equal(t, TagAudio, msgs[1].Type)
}

func TestRecorder_PropagatesConfiguredErrors(t *testing.T) {
	r := NewRecorder()
	r.ConnectErr = assert.AnError
	assert.Error(t, r.Connect(context.Background(), "rtmp://x"))
}

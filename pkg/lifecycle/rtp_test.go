package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltriage-server/pkg/transform"
)

func TestCollectRTPCallIDs(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-b", "", reasonKey, "RTP_RX_TIMEOUT"),
		callRow("call-a", "", reasonKey, "media rtp lost"),
		callRow("call-b", "", reasonKey, "rtp again"),
		callRow("call-c", "", reasonKey, "user hangup"),
		row(reasonKey, "rtp but no call id"),
	}

	assert.Equal(t, []string{"call-a", "call-b"}, CollectRTPCallIDs(rows))
}

func TestCollectRTPCallIDsEmpty(t *testing.T) {
	assert.Empty(t, CollectRTPCallIDs(nil))
}

func TestBuildCallIDOrQuery(t *testing.T) {
	q := BuildCallIDOrQuery([]string{"id-2", "id-1"})

	want := `(@context.callID:("id-1" OR "id-2") OR @context.callId:("id-1" OR "id-2"))`
	assert.Equal(t, want, q)
}

func TestBuildCallIDOrQuerySingle(t *testing.T) {
	q := BuildCallIDOrQuery([]string{"only"})

	assert.Equal(t, `(@context.callID:("only") OR @context.callId:("only"))`, q)
}

func TestAnalyzeRTPTimeouts(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:52.300 KST",
			resourcePathKey, pathCallStopping,
			reasonKey, "RTP_RX_TIMEOUT",
			tagsKey, "uid:1, first_version:2.3.1, env:prod"),
		callRow("call-1", "2024-03-15 08:30:51.000 KST",
			resourcePathKey, "/v1/longRes/poll",
			methodKey, methodBye,
			reasonKey, "rtp rx timeout"),
		callRow("call-1", "2024-03-15 08:30:47.100 KST",
			resourcePathKey, pathCallActive,
			userIDKey, "user-7"),
	}

	records := AnalyzeRTPTimeouts(rows)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "call-1", r.CallID)
	assert.Equal(t, "2.3.1", r.AppVersion)
	assert.Equal(t, "2024-03-15 08:30:47.100 KST", r.StartTime)
	assert.Equal(t, "2024-03-15 08:30:52.300 KST", r.EndTime)
	assert.Equal(t, "5.2", r.Duration)
	// Newest RTP mention wins.
	assert.Equal(t, "RTP_RX_TIMEOUT", r.RTPReason)
	assert.Equal(t, "longRes", r.ByeDelivery)
	assert.Equal(t, "user-7", r.UserID)
}

func TestAnalyzeRTPTimeoutsByeChannelCaseInsensitive(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:51.000 KST",
			resourcePathKey, "/v1/LONGRES/poll",
			methodKey, methodBye),
	}

	records := AnalyzeRTPTimeouts(rows)
	require.Len(t, records, 1)
	assert.Equal(t, "longRes", records[0].ByeDelivery)
}

func TestAnalyzeRTPTimeoutsDefaults(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:51.000 KST",
			resourcePathKey, "/res/other"),
	}

	records := AnalyzeRTPTimeouts(rows)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "N/A", r.AppVersion)
	assert.Equal(t, "N/A", r.RTPReason)
	assert.Equal(t, "N/A", r.ByeDelivery)
	assert.Equal(t, "N/A", r.UserID)
	assert.Equal(t, DurationNoActive, r.Duration)
}

func TestAnalyzeRTPTimeoutsUnknownByeChannel(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:51.000 KST",
			resourcePathKey, "/v1/carrier-pigeon",
			methodKey, methodBye),
	}

	records := AnalyzeRTPTimeouts(rows)
	require.Len(t, records, 1)
	assert.Equal(t, "Unknown", records[0].ByeDelivery)
}

func TestAnalyzeRTPTimeoutsSortedByStartDescending(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("older", "2024-03-15 08:00:00.000 KST", resourcePathKey, pathCallActive),
		callRow("newer", "2024-03-15 09:00:00.000 KST", resourcePathKey, pathCallActive),
	}

	records := AnalyzeRTPTimeouts(rows)
	require.Len(t, records, 2)
	assert.Equal(t, "newer", records[0].CallID)
	assert.Equal(t, "older", records[1].CallID)
}

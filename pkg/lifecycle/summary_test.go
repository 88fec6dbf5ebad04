package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltriage-server/pkg/transform"
)

// row builds a flattened test row from alternating key/value pairs.
func row(kv ...interface{}) *transform.FlatRow {
	r := transform.NewFlatRow()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func callRow(callID, ts string, kv ...interface{}) *transform.FlatRow {
	r := row(kv...)
	r.Set(transform.CallIDKey, callID)
	r.Set(transform.TimestampKey, ts)
	return r
}

func TestSummarizeCallsDuration(t *testing.T) {
	// Newest first: stopping precedes active in the batch.
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:50.300 KST",
			resourcePathKey, pathCallStopping,
			eventTypeKey, "NETWORK_LOST"),
		callRow("call-1", "2024-03-15 08:30:45.100 KST",
			resourcePathKey, pathCallActive),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "call-1", s.CallID)
	assert.Equal(t, "5.2", s.Duration)
	assert.Equal(t, "NETWORK_LOST", s.TerminationReason)
	assert.Equal(t, "2024-03-15 08:30:45.100 KST", s.StartTime)
	assert.Equal(t, "2024-03-15 08:30:50.300 KST", s.EndTime)
}

func TestSummarizeCallsTerminationDetail(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:50.000 KST",
			resourcePathKey, pathCallStopping,
			eventTypeKey, "NETWORK_LOST",
			eventDetailKey, "rtp rx timeout"),
		callRow("call-1", "2024-03-15 08:30:45.000 KST",
			resourcePathKey, pathCallActive),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, "NETWORK_LOST (rtp rx timeout)", summaries[0].TerminationReason)
}

func TestSummarizeCallsSentinels(t *testing.T) {
	noActive := SummarizeCalls([]*transform.FlatRow{
		callRow("c1", "2024-03-15 08:30:50.000 KST", resourcePathKey, pathCallStopping),
	})
	require.Len(t, noActive, 1)
	assert.Equal(t, DurationNoActive, noActive[0].Duration)

	noStopping := SummarizeCalls([]*transform.FlatRow{
		callRow("c2", "2024-03-15 08:30:45.000 KST", resourcePathKey, pathCallActive),
	})
	require.Len(t, noStopping, 1)
	assert.Equal(t, DurationNoStopping, noStopping[0].Duration)

	badFormat := SummarizeCalls([]*transform.FlatRow{
		callRow("c3", "garbage", resourcePathKey, pathCallStopping),
		callRow("c3", "2024-03-15 08:30:45.000 KST", resourcePathKey, pathCallActive),
	})
	require.Len(t, badFormat, 1)
	assert.Equal(t, DurationParseError, badFormat[0].Duration)
}

func TestSummarizeCallsNewestPhaseWins(t *testing.T) {
	// Two STOPPING rows: the newer one supplies both the timestamp and
	// the termination reason.
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:31:00.000 KST",
			resourcePathKey, pathCallStopping,
			eventTypeKey, "RETRY_EXHAUSTED"),
		callRow("call-1", "2024-03-15 08:30:55.000 KST",
			resourcePathKey, pathCallStopping,
			eventTypeKey, "FIRST_ATTEMPT"),
		callRow("call-1", "2024-03-15 08:30:45.000 KST",
			resourcePathKey, pathCallActive),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, "15.0", summaries[0].Duration)
	assert.Equal(t, "RETRY_EXHAUSTED", summaries[0].TerminationReason)
}

func TestSummarizeCallsStatusCodes(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:49.000 KST",
			resourcePathKey, pathEndCall, statusCodeKey, float64(200)),
		callRow("call-1", "2024-03-15 08:30:47.000 KST",
			resourcePathKey, pathAcceptCall, statusCodeKey, float64(200)),
		callRow("call-1", "2024-03-15 08:30:46.000 KST",
			resourcePathKey, pathRequestVoiceCall, statusCodeKey, float64(503)),
		callRow("call-1", "2024-03-15 08:30:45.000 KST",
			resourcePathKey, pathRequestVoiceCall, statusCodeKey, float64(200)),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)

	s := summaries[0]
	// First match in newest-first order, so the retry's 503 wins.
	assert.Equal(t, float64(503), s.RequestVoiceCall)
	assert.Equal(t, float64(200), s.AcceptCall)
	assert.Nil(t, s.RejectCall)
	assert.Equal(t, float64(200), s.EndCall)
}

func TestSummarizeCallsCountersCapped(t *testing.T) {
	rows := make([]*transform.FlatRow, 0, 5)
	for i := 5; i >= 1; i-- {
		rows = append(rows, callRow("call-1", "2024-03-15 08:30:45.000 KST",
			resourcePathKey, pathSendPackets,
			totalCountKey, float64(i*100)))
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, []transform.Value{float64(500), float64(400), float64(300)}, summaries[0].SendPackets)
	assert.Empty(t, summaries[0].ReceiveHealth)
}

func TestSummarizeCallsCountersSkipNull(t *testing.T) {
	// Explicit-null counts must not occupy slots in the capped list.
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:49.000 KST",
			resourcePathKey, pathSendPackets, totalCountKey, nil),
		callRow("call-1", "2024-03-15 08:30:48.000 KST",
			resourcePathKey, pathSendPackets, totalCountKey, nil),
		callRow("call-1", "2024-03-15 08:30:47.000 KST",
			resourcePathKey, pathSendPackets, totalCountKey, nil),
		callRow("call-1", "2024-03-15 08:30:46.000 KST",
			resourcePathKey, pathSendPackets, totalCountKey, float64(480)),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, []transform.Value{float64(480)}, summaries[0].SendPackets)
}

func TestSummarizeCallsTerminationDetailOnly(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:50.000 KST",
			resourcePathKey, pathCallStopping,
			eventDetailKey, "rtp rx timeout"),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, "(rtp rx timeout)", summaries[0].TerminationReason)
}

func TestSummarizeCallsNumericCallID(t *testing.T) {
	r := row(resourcePathKey, pathCallActive)
	r.Set(transform.CallIDKey, float64(94823001))
	r.Set(transform.TimestampKey, "2024-03-15 08:30:45.000 KST")

	summaries := SummarizeCalls([]*transform.FlatRow{r})
	require.Len(t, summaries, 1)
	assert.Equal(t, "94823001", summaries[0].CallID)
}

func TestSummarizeCallsByeReasonFirstWins(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("call-1", "2024-03-15 08:30:50.000 KST",
			methodKey, methodBye, reasonKey, "RTP_RX_TIMEOUT"),
		callRow("call-1", "2024-03-15 08:30:48.000 KST",
			methodKey, methodBye, reasonKey, "stale duplicate"),
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 1)
	assert.Equal(t, "RTP_RX_TIMEOUT", summaries[0].ByeReason)
}

func TestSummarizeCallsGroupsAndSorts(t *testing.T) {
	rows := []*transform.FlatRow{
		callRow("old-call", "2024-03-15 08:10:00.000 KST", resourcePathKey, pathCallActive),
		callRow("new-call", "2024-03-15 09:00:00.000 KST", resourcePathKey, pathCallActive),
		row(resourcePathKey, pathCallActive), // no Call ID, dropped
	}

	summaries := SummarizeCalls(rows)
	require.Len(t, summaries, 2)
	assert.Equal(t, "new-call", summaries[0].CallID)
	assert.Equal(t, "old-call", summaries[1].CallID)
}

func TestSummarizeCallsEmpty(t *testing.T) {
	assert.Empty(t, SummarizeCalls(nil))
}

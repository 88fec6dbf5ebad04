package lifecycle

import (
	"fmt"
	"sort"
	"strconv"

	"calltriage-server/pkg/transform"
)

// CallSummary condenses all telemetry rows of one call into a single
// lifecycle record.
type CallSummary struct {
	CallID            string            `json:"call_id"`
	StartTime         string            `json:"start_time"`
	EndTime           string            `json:"end_time"`
	Duration          string            `json:"duration_sec"`
	TerminationReason string            `json:"termination_reason"`
	ByeReason         string            `json:"bye_reason"`
	RequestVoiceCall  transform.Value   `json:"request_voice_call_status"`
	AcceptCall        transform.Value   `json:"accept_call_status"`
	RejectCall        transform.Value   `json:"reject_call_status"`
	EndCall           transform.Value   `json:"end_call_status"`
	SendPackets       []transform.Value `json:"send_packets"`
	ReceiveHealth     []transform.Value `json:"receive_health_check"`
	RowCount          int               `json:"row_count"`
}

// callIDString renders a unified call identifier as a grouping key.
// Identifiers are normally strings but some SDK builds emit them as
// numbers.
func callIDString(v transform.Value) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// groupCalls buckets rows by unified call identifier, preserving the
// order identifiers are first seen. Rows without an identifier are
// dropped.
func groupCalls(rows []*transform.FlatRow) ([]string, map[string][]*transform.FlatRow) {
	order := make([]string, 0)
	groups := make(map[string][]*transform.FlatRow)

	for _, row := range rows {
		v, ok := row.NonNull(transform.CallIDKey)
		if !ok {
			continue
		}
		id := callIDString(v)
		if id == "" {
			continue
		}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], row)
	}

	return order, groups
}

// computeDuration measures active-to-stopping wall time in seconds with
// one decimal. A missing phase or an unparsable timestamp yields a
// sentinel instead of a number.
func computeDuration(active, stopping *transform.FlatRow) string {
	if active == nil {
		return DurationNoActive
	}
	if stopping == nil {
		return DurationNoStopping
	}

	activeTS, _ := active.GetString(transform.TimestampKey)
	stoppingTS, _ := stopping.GetString(transform.TimestampKey)

	start, okStart := transform.ParseDisplay(activeTS)
	end, okEnd := transform.ParseDisplay(stoppingTS)
	if !okStart || !okEnd {
		return DurationParseError
	}

	return fmt.Sprintf("%.1f", end.Sub(start).Seconds())
}

// terminationReason reads the stop event's type and optional detail
// from the stopping row.
func terminationReason(stopping *transform.FlatRow) string {
	if stopping == nil {
		return ""
	}

	eventType, _ := stopping.GetString(eventTypeKey)
	detail, _ := stopping.GetString(eventDetailKey)
	if detail != "" {
		detail = "(" + detail + ")"
	}
	if eventType == "" {
		return detail
	}
	if detail == "" {
		return eventType
	}
	return eventType + " " + detail
}

// collectCounters gathers up to counterCap packet counter samples for
// the given resource path, newest first.
func collectCounters(rows []*transform.FlatRow, path string) []transform.Value {
	out := make([]transform.Value, 0, counterCap)
	for _, row := range rows {
		if !pathEquals(path)(row) {
			continue
		}
		if v, ok := row.NonNull(totalCountKey); ok {
			out = append(out, v)
			if len(out) == counterCap {
				break
			}
		}
	}
	return out
}

// statusOf returns the HTTP status of the newest row hitting path, or
// nil when the call never hit it.
func statusOf(rows []*transform.FlatRow, path string) transform.Value {
	row := firstMatch(rows, pathEquals(path))
	if row == nil {
		return nil
	}
	v, _ := row.Get(statusCodeKey)
	return v
}

// summarizeCall builds the lifecycle record for one call from its rows,
// ordered newest first.
func summarizeCall(callID string, rows []*transform.FlatRow) CallSummary {
	active := firstMatch(rows, pathEquals(pathCallActive))
	stopping := firstMatch(rows, pathEquals(pathCallStopping))

	s := CallSummary{
		CallID:            callID,
		Duration:          computeDuration(active, stopping),
		TerminationReason: terminationReason(stopping),
		RequestVoiceCall:  statusOf(rows, pathRequestVoiceCall),
		AcceptCall:        statusOf(rows, pathAcceptCall),
		RejectCall:        statusOf(rows, pathRejectCall),
		EndCall:           statusOf(rows, pathEndCall),
		SendPackets:       collectCounters(rows, pathSendPackets),
		ReceiveHealth:     collectCounters(rows, pathReceiveHealthCheck),
		RowCount:          len(rows),
	}

	if len(rows) > 0 {
		// Newest first: the last row opened the call, the first closed it.
		s.StartTime, _ = rows[len(rows)-1].GetString(transform.TimestampKey)
		s.EndTime, _ = rows[0].GetString(transform.TimestampKey)
	}

	if bye := firstMatch(rows, methodEquals(methodBye)); bye != nil {
		s.ByeReason, _ = bye.GetString(reasonKey)
	}

	return s
}

// SummarizeCalls groups flattened rows by call identifier and builds
// one lifecycle record per call, most recent call first. Rows must
// arrive ordered newest first.
func SummarizeCalls(rows []*transform.FlatRow) []CallSummary {
	order, groups := groupCalls(rows)

	summaries := make([]CallSummary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, summarizeCall(id, groups[id]))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime > summaries[j].StartTime
	})

	return summaries
}

package lifecycle

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"calltriage-server/pkg/rules"
	"calltriage-server/pkg/transform"
)

// RTPReasonQuery selects events whose teardown reason mentions RTP,
// either casing, for the first phase of the post-mortem.
const RTPReasonQuery = "@context.reason:(*RTP* OR *rtp*)"

const notAvailable = "N/A"

// byeChannels maps the resource path of a BYE delivery to the channel
// it arrived over. Rules are ordered; the first match wins.
var byeChannels = rules.NewClassifier("Unknown",
	rules.Contains("longres", "longRes"),
	rules.Contains("restreq", "restReq"),
	rules.Contains("sendmessage", "sendMessage"),
	rules.Contains("recvmessage", "recvMessage"),
)

// rtpReason matches any reason text containing "rtp", ignoring case.
var rtpReason = rules.ContainsFold("rtp")

var firstVersionTag = regexp.MustCompile(`first_version:([^,]+)`)

// RTPRecord is the post-mortem of one call whose teardown mentioned an
// RTP timeout.
type RTPRecord struct {
	CallID      string `json:"call_id"`
	AppVersion  string `json:"app_version"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Duration    string `json:"duration_sec"`
	RTPReason   string `json:"rtp_reason"`
	ByeDelivery string `json:"bye_delivery"`
	UserID      string `json:"usr_id"`
}

// CollectRTPCallIDs returns the distinct call identifiers of rows whose
// reason text mentions RTP, sorted for deterministic query building.
func CollectRTPCallIDs(rows []*transform.FlatRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		reason, ok := row.GetString(reasonKey)
		if !ok || !rtpReason(reason) {
			continue
		}
		v, ok := row.NonNull(transform.CallIDKey)
		if !ok {
			continue
		}
		if id := callIDString(v); id != "" {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildCallIDOrQuery builds the phase-2 search query matching any of the
// given call identifiers under either casing of the identifier field.
func BuildCallIDOrQuery(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	quoted := make([]string, len(sorted))
	for i, id := range sorted {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	group := strings.Join(quoted, " OR ")

	return fmt.Sprintf("(@context.callID:(%s) OR @context.callId:(%s))", group, group)
}

// appVersion extracts the first_version tag from the newest row of a
// call.
func appVersion(rows []*transform.FlatRow) string {
	if len(rows) == 0 {
		return notAvailable
	}
	tags, ok := rows[0].GetString(tagsKey)
	if !ok {
		return notAvailable
	}
	m := firstVersionTag.FindStringSubmatch(tags)
	if m == nil {
		return notAvailable
	}
	return strings.TrimSpace(m[1])
}

// representativeUser returns the first non-null user id seen across the
// call's rows.
func representativeUser(rows []*transform.FlatRow) string {
	row := firstMatch(rows, func(r *transform.FlatRow) bool {
		id, ok := r.GetString(userIDKey)
		return ok && id != ""
	})
	if row == nil {
		return notAvailable
	}
	id, _ := row.GetString(userIDKey)
	return id
}

// analyzeCall builds the RTP post-mortem for one call from its rows,
// ordered newest first.
func analyzeCall(callID string, rows []*transform.FlatRow) RTPRecord {
	rec := RTPRecord{
		CallID:      callID,
		AppVersion:  appVersion(rows),
		RTPReason:   notAvailable,
		ByeDelivery: notAvailable,
		UserID:      representativeUser(rows),
	}

	if len(rows) > 0 {
		rec.StartTime, _ = rows[len(rows)-1].GetString(transform.TimestampKey)
		rec.EndTime, _ = rows[0].GetString(transform.TimestampKey)
	}

	if row := firstMatch(rows, func(r *transform.FlatRow) bool {
		reason, ok := r.GetString(reasonKey)
		return ok && rtpReason(reason)
	}); row != nil {
		rec.RTPReason, _ = row.GetString(reasonKey)
	}

	if bye := firstMatch(rows, methodEquals(methodBye)); bye != nil {
		path, _ := bye.GetString(resourcePathKey)
		rec.ByeDelivery = byeChannels.Classify(path)
	}

	active := firstMatch(rows, pathEquals(pathCallActive))
	stopping := firstMatch(rows, pathEquals(pathCallStopping))
	rec.Duration = computeDuration(active, stopping)

	return rec
}

// AnalyzeRTPTimeouts builds one post-mortem per call from the phase-2
// row set, most recent call first. Rows must arrive ordered newest
// first.
func AnalyzeRTPTimeouts(rows []*transform.FlatRow) []RTPRecord {
	order, groups := groupCalls(rows)

	records := make([]RTPRecord, 0, len(order))
	for _, id := range order {
		records = append(records, analyzeCall(id, groups[id]))
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime > records[j].StartTime
	})

	return records
}

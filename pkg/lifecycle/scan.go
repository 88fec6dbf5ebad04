package lifecycle

import (
	"calltriage-server/pkg/transform"
)

// Column names of the flattened telemetry rows this package reads.
const (
	resourcePathKey = "attributes.resource.url_path"
	statusCodeKey   = "attributes.resource.status_code"
	methodKey       = "attributes.context.method"
	reasonKey       = "attributes.context.reason"
	eventTypeKey    = "attributes.context.eventType"
	eventDetailKey  = "attributes.context.eventDetail"
	totalCountKey   = "attributes.context.totalCount"
	userIDKey       = "attributes.usr.id"
	tagsKey         = "tags"
)

// Resource paths of the SDK operations a call lifecycle is built from.
const (
	pathCallActive         = "/res/SDK_CALL_STATUS_ACTIVE"
	pathCallStopping       = "/res/SDK_CALL_STATUS_STOPPING"
	pathRequestVoiceCall   = "/res/requestVoiceCall"
	pathAcceptCall         = "/res/acceptCall"
	pathRejectCall         = "/res/rejectCall"
	pathEndCall            = "/res/endCall"
	pathSendPackets        = "/res/ENGINE_SendPackets"
	pathReceiveHealthCheck = "/res/ENGINE_ReceiveHealthCheck"
)

const methodBye = "BYE"

// Duration sentinels emitted when a lifecycle cannot be measured.
const (
	DurationNoActive   = "NO_ACTIVE"
	DurationNoStopping = "NO_STOPPING"
	DurationParseError = "PARSE_ERROR"
)

// counterCap limits how many packet counter samples a summary retains
// per direction.
const counterCap = 3

// firstMatch scans rows in slice order and returns the first row the
// predicate accepts. Rows arrive newest first, so the first match is
// the most recent occurrence.
func firstMatch(rows []*transform.FlatRow, pred func(*transform.FlatRow) bool) *transform.FlatRow {
	for _, row := range rows {
		if pred(row) {
			return row
		}
	}
	return nil
}

// pathEquals accepts rows whose resource path equals p.
func pathEquals(p string) func(*transform.FlatRow) bool {
	return func(row *transform.FlatRow) bool {
		v, ok := row.GetString(resourcePathKey)
		return ok && v == p
	}
}

// methodEquals accepts rows whose signaling method equals m.
func methodEquals(m string) func(*transform.FlatRow) bool {
	return func(row *transform.FlatRow) bool {
		v, ok := row.GetString(methodKey)
		return ok && v == m
	}
}

package transform

// CallIDKey is the unified column every call identifier is copied to.
const CallIDKey = "Call ID"

// callIDCandidates lists the source columns a call identifier may
// arrive under, highest priority first.
var callIDCandidates = []string{
	"attributes.context.callID",
	"attributes.context.callId",
	"attributes.context.CallIDs",
}

// UnifyCallID copies the highest-priority non-null call identifier into
// the "Call ID" column and removes the candidate columns. Rows without
// an identifier keep their shape and never gain the unified column.
func UnifyCallID(row *FlatRow) {
	var found Value
	ok := false
	for _, key := range callIDCandidates {
		if v, present := row.NonNull(key); present {
			found = v
			ok = true
			break
		}
	}

	if !ok {
		return
	}

	for _, key := range callIDCandidates {
		row.Delete(key)
	}
	row.Set(CallIDKey, found)
}

package correlator

// hangupCauseNames maps Asterisk hangup cause codes to short names,
// used as a fallback when an event's cause_txt is empty.
var hangupCauseNames = map[int]string{
	0:   "UNKNOWN",
	16:  "NORMAL CLEARING",
	17:  "USER BUSY",
	18:  "NO ANSWER",
	19:  "NO ANSWER",
	21:  "CALL REJECTED",
	31:  "NORMAL UNSPECIFIED",
	34:  "CONGESTION",
	127: "INTERWORKING",
}

// hangupCauseText prefers the event's own cause_txt; when that's
// empty it falls back to the cause-code lookup table, and finally to
// a generic label so a leg's lastStatus is never left blank by a
// hangup.
func hangupCauseText(cause int, causeTxt string) string {
	if causeTxt != "" {
		return normalizeStatus(causeTxt)
	}
	if name, ok := hangupCauseNames[cause]; ok {
		return name
	}
	return "UNKNOWN"
}

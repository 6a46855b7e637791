package mailsync

import "strings"

// discard reports whether a record must be dropped before dedup:
// drafts, and sent mail that did not also land in the inbox.
func discard(labels []string) bool {
	var sent, inbox bool
	for _, l := range labels {
		switch strings.ToUpper(l) {
		case LabelDraft:
			return true
		case LabelSent:
			sent = true
		case LabelInbox:
			inbox = true
		}
	}
	return sent && !inbox
}

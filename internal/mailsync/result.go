package mailsync

import "errors"

type Outcome string

const (
	OutcomeNotLinked     Outcome = "not_linked"
	OutcomeBaseline      Outcome = "baseline"
	OutcomeSynced        Outcome = "synced"
	OutcomeRefreshFailed Outcome = "refresh_failed"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeCommitFailed  Outcome = "commit_failed"
)

var (
	ErrUnknownProvider   = errors.New("mailsync: unknown provider")
	ErrEmptyMarker       = errors.New("mailsync: empty history marker")
	ErrCredentialRefresh = errors.New("mailsync: credential refresh failed")
	ErrFetchDelta        = errors.New("mailsync: delta fetch failed")
	ErrCommit            = errors.New("mailsync: commit failed")
	ErrNotLinked         = errors.New("mailsync: account is not linked")
)

// Result summarizes one pass.
type Result struct {
	Outcome       Outcome `json:"outcome"`
	AccountID     string  `json:"account_id,omitempty"`
	Cursor        string  `json:"cursor,omitempty"`
	Accepted      int     `json:"accepted"`
	Duplicate     int     `json:"duplicate"`
	Filtered      int     `json:"filtered"`
	Unrecommended int     `json:"unrecommended"`
}

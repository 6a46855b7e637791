package mailsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscard(t *testing.T) {
	cases := []struct {
		labels []string
		want   bool
	}{
		{[]string{"INBOX"}, false},
		{[]string{"DRAFT"}, true},
		{[]string{"DRAFT", "INBOX"}, true},
		{[]string{"SENT"}, true},
		{[]string{"SENT", "INBOX"}, false},
		{[]string{"sent", "inbox"}, false},
		{[]string{"CATEGORY_UPDATES"}, false},
		{nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, discard(tc.labels), "labels %v", tc.labels)
	}
}

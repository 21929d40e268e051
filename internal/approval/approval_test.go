package approval

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		decisions []Decision
		want      Decision
	}{
		{"approval beats rejection", []Decision{DecisionRejected, DecisionApproved}, DecisionApproved},
		{"rejection beats pending", []Decision{DecisionPending, DecisionRejected}, DecisionRejected},
		{"pending beats unknown", []Decision{DecisionUnknown, DecisionPending}, DecisionPending},
		{"all unknown", []Decision{DecisionUnknown, DecisionUnknown}, DecisionUnknown},
		{"empty", nil, DecisionUnknown},
		{"single approval", []Decision{DecisionApproved}, DecisionApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.decisions))
		})
	}
}

func slackWithReactions(t *testing.T, reactions string) (*slackapi.Client, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/reactions.get" {
			fmt.Fprintf(w, `{"ok":true,"message":{"reactions":[%s]}}`, reactions)
			return
		}
		fmt.Fprint(w, `{"ok":true,"ts":"1.2"}`)
	}))
	client := slackapi.NewClient(slackapi.Config{BotToken: "t", ChannelID: "C1", BaseURL: server.URL})
	return client, server.Close
}

func reactionFixture(t *testing.T) (*ledger.Ledger, ledger.CandidateAction) {
	t.Helper()
	l := ledger.New(t.TempDir())
	action, err := l.Propose(context.Background(), ledger.CandidateAction{
		SubjectID:  "ad-1",
		ActionKind: ledger.ActionPauseAd,
	})
	require.NoError(t, err)
	require.NoError(t, l.SaveReactionRef(context.Background(), ledger.ReactionRef{
		ActionID: action.ID, ChannelID: "C1", MessageTS: "1.2",
	}))
	return l, action
}

func TestReactionReaderApproved(t *testing.T) {
	l, action := reactionFixture(t)
	slack, done := slackWithReactions(t, `{"name":"white_check_mark","count":1}`)
	defer done()

	reader := NewReactionReader(slack, l, "white_check_mark", "x")
	d, err := reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, d)
}

func TestReactionReaderApprovalBeatsRejectOnSameMessage(t *testing.T) {
	l, action := reactionFixture(t)
	slack, done := slackWithReactions(t, `{"name":"x","count":1},{"name":"white_check_mark","count":1}`)
	defer done()

	reader := NewReactionReader(slack, l, "white_check_mark", "x")
	d, err := reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, d)
}

func TestReactionReaderNoReactionsIsPending(t *testing.T) {
	l, action := reactionFixture(t)
	slack, done := slackWithReactions(t, ``)
	defer done()

	reader := NewReactionReader(slack, l, "white_check_mark", "x")
	d, err := reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionPending, d)
}

func TestReactionReaderMissingMessageIsUnknown(t *testing.T) {
	l, action := reactionFixture(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"message_not_found"}`)
	}))
	defer server.Close()
	slack := slackapi.NewClient(slackapi.Config{BotToken: "t", ChannelID: "C1", BaseURL: server.URL})

	reader := NewReactionReader(slack, l, "white_check_mark", "x")
	d, err := reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnknown, d)
}

func TestReactionReaderNoRefIsUnknown(t *testing.T) {
	l := ledger.New(t.TempDir())
	action, err := l.Propose(context.Background(), ledger.CandidateAction{SubjectID: "ad-2", ActionKind: ledger.ActionPauseAd})
	require.NoError(t, err)

	slack, done := slackWithReactions(t, ``)
	defer done()

	reader := NewReactionReader(slack, l, "white_check_mark", "x")
	d, err := reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnknown, d)
}

type fakeSheet struct {
	rows [][]string
	err  error
}

func (f *fakeSheet) ReadAllRows(ctx context.Context) ([][]string, error) {
	return f.rows, f.err
}

func TestSheetReader(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{
		{"Ad ID", "Name", "Approval"},
		{"ad-1", "Ad One", "yes"},
		{"ad-2", "Ad Two", "NO"},
		{"ad-3", "Ad Three", ""},
		{"ad-4"},
	}}
	reader := NewSheetReader(sheet, "Approval", "Ad ID")
	ctx := context.Background()

	tests := []struct {
		subject string
		want    Decision
	}{
		{"ad-1", DecisionApproved},
		{"ad-2", DecisionRejected},
		{"ad-3", DecisionPending},
		{"ad-4", DecisionPending},
		// A subject with no row yet is undecided, not unreadable.
		{"ad-9", DecisionPending},
	}
	for _, tt := range tests {
		d, err := reader.Poll(ctx, ledger.CandidateAction{SubjectID: tt.subject})
		require.NoError(t, err)
		assert.Equal(t, tt.want, d, tt.subject)
	}
}

func TestSheetReaderMissingColumnsIsUnknown(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{{"Something", "Else"}, {"ad-1", "x"}}}
	reader := NewSheetReader(sheet, "Approval", "Ad ID")
	d, err := reader.Poll(context.Background(), ledger.CandidateAction{SubjectID: "ad-1"})
	require.NoError(t, err)
	assert.Equal(t, DecisionUnknown, d)
}

func TestWebReaderMirrorsLedgerStatus(t *testing.T) {
	l := ledger.New(t.TempDir())
	action, err := l.Propose(context.Background(), ledger.CandidateAction{SubjectID: "ad-1", ActionKind: ledger.ActionPauseAd})
	require.NoError(t, err)

	reader := NewWebReader(l)
	d, err := reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionPending, d)

	_, err = l.Transition(context.Background(), action.ID, ledger.StatusApproved, "web:admin")
	require.NoError(t, err)

	d, err = reader.Poll(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, d)
}

package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/ad-autopilot/internal/approval"
	"github.com/ignite/ad-autopilot/internal/executor"
	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/meta"
	"github.com/ignite/ad-autopilot/internal/metrics"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

type fakeAPI struct {
	adSets   map[string][]meta.AdSet
	ads      map[string][]meta.Ad
	insights map[string]meta.Insights
	token    *meta.TokenInfo
	tokenErr error
}

func (f *fakeAPI) ListAdSets(ctx context.Context, campaignID string) ([]meta.AdSet, error) {
	return f.adSets[campaignID], nil
}

func (f *fakeAPI) ListAds(ctx context.Context, adSetID string) ([]meta.Ad, error) {
	return f.ads[adSetID], nil
}

func (f *fakeAPI) GetInsights(ctx context.Context, entityID string, window meta.Window) (meta.Insights, error) {
	return f.insights[entityID], nil
}

func (f *fakeAPI) GetCreativeThumbnail(ctx context.Context, adID string) (string, error) {
	return "https://cdn.example.com/" + adID + ".jpg", nil
}

func (f *fakeAPI) DebugToken(ctx context.Context) (*meta.TokenInfo, error) {
	return f.token, f.tokenErr
}

type fakeChat struct {
	messages []string
	blocks   [][]slackapi.Block
	nextTS   int
}

func (f *fakeChat) PostMessage(ctx context.Context, text string) (string, error) {
	f.messages = append(f.messages, text)
	f.nextTS++
	return fmt.Sprintf("%d.0", f.nextTS), nil
}

func (f *fakeChat) PostBlocks(ctx context.Context, blocks []slackapi.Block, fallback string) (string, error) {
	f.blocks = append(f.blocks, blocks)
	f.messages = append(f.messages, fallback)
	f.nextTS++
	return fmt.Sprintf("%d.0", f.nextTS), nil
}

type fakeSheet struct {
	rows     [][]string
	appended [][]string
}

func (f *fakeSheet) ReadAllRows(ctx context.Context) ([][]string, error) {
	return f.rows, nil
}

func (f *fakeSheet) AppendRows(ctx context.Context, rows [][]string) error {
	f.appended = append(f.appended, rows...)
	return nil
}

type stubReader struct {
	name      string
	decisions map[string]approval.Decision
}

func (s *stubReader) Name() string { return s.name }

func (s *stubReader) Poll(ctx context.Context, c ledger.CandidateAction) (approval.Decision, error) {
	if d, ok := s.decisions[c.SubjectID]; ok {
		return d, nil
	}
	return approval.DecisionUnknown, nil
}

func testThresholds() metrics.Thresholds {
	return metrics.Thresholds{
		ImpressionThreshold: 500,
		MinAdCount:          4,
		TopCTRCount:         5,
		LookbackDays:        14,
		FullHistoryDays:     730,
	}
}

// adsFixture builds n ads in one ad set, the first low of them under
// the impression threshold.
func adsFixture(adSetID string, n, low int) ([]meta.Ad, map[string]meta.Insights) {
	ads := make([]meta.Ad, n)
	insights := make(map[string]meta.Insights, n)
	for i := 0; i < n; i++ {
		id := adSetID + "-ad-" + strconv.Itoa(i)
		ads[i] = meta.Ad{ID: id, Name: "Ad " + strconv.Itoa(i)}
		if i < low {
			insights[id] = meta.Insights{Impressions: 200, Clicks: 2}
		} else {
			insights[id] = meta.Insights{Impressions: 5000, Clicks: 100, Spend: 50}
		}
	}
	return ads, insights
}

func newOrchestrator(t *testing.T, api *fakeAPI, chat *fakeChat, sheet *fakeSheet, readers ...approval.Reader) (*Orchestrator, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(t.TempDir())
	cfg := Config{
		API:        api,
		Ledger:     l,
		Thresholds: testThresholds(),
		Campaigns:  []string{"camp-1"},
		ChannelID:  "C1",
		Readers:    readers,
	}
	if chat != nil {
		cfg.Chat = chat
	}
	if sheet != nil {
		cfg.Sheet = sheet
	}
	return New(cfg), l
}

func TestDiscoverDuplicationsProposesQualifyingAdSet(t *testing.T) {
	ads, insights := adsFixture("as-1", 8, 5)
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "Prospecting"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	chat := &fakeChat{}
	o, l := newOrchestrator(t, api, chat, nil)

	summary, err := o.DiscoverDuplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Proposed)

	pending, err := l.List(ledger.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "as-1", pending[0].SubjectID)
	assert.Equal(t, ledger.ActionDuplicateAdSet, pending[0].ActionKind)

	// Approval request posted and its message remembered.
	require.Len(t, chat.blocks, 1)
	refs, err := l.ReactionRefs()
	require.NoError(t, err)
	assert.Contains(t, refs, pending[0].ID)
}

func TestDiscoverDuplicationsSkipsBelowMinimum(t *testing.T) {
	ads, insights := adsFixture("as-1", 8, 3)
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "P"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	chat := &fakeChat{}
	o, l := newOrchestrator(t, api, chat, nil)

	summary, err := o.DiscoverDuplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Proposed)
	assert.Equal(t, 1, summary.Skipped)

	pending, _ := l.List(ledger.StatusPending)
	assert.Empty(t, pending)
	// The skip itself is announced, then the no-candidates notice.
	require.Len(t, chat.messages, 2)
	assert.Contains(t, chat.messages[0], "Skipping P (as-1)")
	assert.Contains(t, chat.messages[0], "only 3 of 8")
	assert.Contains(t, chat.messages[1], "no duplication candidates")
}

func TestDiscoverDuplicationsAnnouncesZeroRemainderSkip(t *testing.T) {
	// Every ad is under the threshold, so nothing would remain.
	ads, insights := adsFixture("as-1", 5, 5)
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "P"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	chat := &fakeChat{}
	o, l := newOrchestrator(t, api, chat, nil)

	summary, err := o.DiscoverDuplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Proposed)
	assert.Equal(t, 1, summary.Skipped)

	pending, _ := l.List(ledger.StatusPending)
	assert.Empty(t, pending)
	require.Len(t, chat.messages, 2)
	assert.Contains(t, chat.messages[0], "nothing would remain")
}

func TestDiscoverDuplicationsSkipsAlreadyDuplicated(t *testing.T) {
	ads, insights := adsFixture("as-1", 8, 5)
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "P"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	o, l := newOrchestrator(t, api, nil, nil)
	require.NoError(t, l.AppendMutation(context.Background(), ledger.MutationRecord{
		ActionID: "prev", ActionKind: ledger.ActionDuplicateAdSet, OriginalID: "as-1", NewID: "as-1-v2",
	}))

	summary, err := o.DiscoverDuplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Proposed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestDiscoverStopCandidatesProtectsWinnersAndConverters(t *testing.T) {
	ads := []meta.Ad{
		{ID: "low-1", Name: "Low One"},
		{ID: "low-2", Name: "Low Two"},
		{ID: "converter", Name: "Converter"},
		{ID: "healthy", Name: "Healthy"},
	}
	insights := map[string]meta.Insights{
		"low-1":     {Impressions: 100, Clicks: 1},
		"low-2":     {Impressions: 200, Clicks: 4},
		"converter": {Impressions: 300, Spend: 30, Actions: []meta.Action{{ActionType: "lead", Value: "2"}}},
		"healthy":   {Impressions: 9000, Clicks: 400},
	}
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "P"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	chat := &fakeChat{}
	sheet := &fakeSheet{}
	o, l := newOrchestrator(t, api, chat, sheet)
	// All non-converting ads fit in the CTR top 5 by default; narrow
	// the protection so only the top two CTR ads survive.
	o.thresholds.TopCTRCount = 2

	summary, err := o.DiscoverStopCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Proposed)

	pending, _ := l.List(ledger.StatusPending)
	require.Len(t, pending, 1)
	// converter wins on CPA, healthy and low-2 take the CTR slots;
	// low-1 is the only stop candidate.
	assert.Equal(t, "low-1", pending[0].SubjectID)
	assert.Equal(t, ledger.ActionPauseAd, pending[0].ActionKind)
}

func TestDiscoverStopCandidatesBootstrapsSheetHeader(t *testing.T) {
	ads, insights := adsFixture("as-1", 2, 1)
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "P"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	sheet := &fakeSheet{}
	o, _ := newOrchestrator(t, api, nil, sheet)
	o.thresholds.TopCTRCount = 0

	_, err := o.DiscoverStopCandidates(context.Background())
	require.NoError(t, err)

	// With no winner slots, both non-converting ads are candidates.
	require.Len(t, sheet.appended, 3)
	assert.Equal(t, "Ad ID", sheet.appended[0][0])
	assert.Equal(t, "as-1-ad-0", sheet.appended[1][0])
	assert.Equal(t, "as-1-ad-1", sheet.appended[2][0])
}

func TestDiscoverStopCandidatesIncludesHighImpressionNonWinners(t *testing.T) {
	// A non-winner is a candidate even with plenty of impressions, as
	// long as it has no conversions.
	ads := []meta.Ad{
		{ID: "winner", Name: "Winner"},
		{ID: "loser", Name: "Loser"},
	}
	insights := map[string]meta.Insights{
		"winner": {Impressions: 1000, Clicks: 100},
		"loser":  {Impressions: 10000, Clicks: 10},
	}
	api := &fakeAPI{
		adSets:   map[string][]meta.AdSet{"camp-1": {{ID: "as-1", Name: "P"}}},
		ads:      map[string][]meta.Ad{"as-1": ads},
		insights: insights,
	}
	o, l := newOrchestrator(t, api, nil, nil)
	o.thresholds.TopCTRCount = 1

	summary, err := o.DiscoverStopCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Proposed)

	pending, _ := l.List(ledger.StatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "loser", pending[0].SubjectID)
	assert.Equal(t, ledger.ActionPauseAd, pending[0].ActionKind)
}

func TestCollectDecisionsAppliesMergedVerdicts(t *testing.T) {
	o, l := newOrchestrator(t, &fakeAPI{}, nil, nil,
		&stubReader{name: "slack_reactions", decisions: map[string]approval.Decision{
			"ad-approve": approval.DecisionApproved,
			"ad-mixed":   approval.DecisionRejected,
		}},
		&stubReader{name: "sheet", decisions: map[string]approval.Decision{
			"ad-reject": approval.DecisionRejected,
			"ad-mixed":  approval.DecisionApproved,
		}},
	)

	ctx := context.Background()
	for _, subject := range []string{"ad-approve", "ad-reject", "ad-mixed", "ad-wait"} {
		_, err := l.Propose(ctx, ledger.CandidateAction{SubjectID: subject, ActionKind: ledger.ActionPauseAd})
		require.NoError(t, err)
	}

	summary, err := o.CollectDecisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Approved)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.StillPending)

	approved, _ := l.List(ledger.StatusApproved)
	subjects := make(map[string]bool)
	for _, a := range approved {
		subjects[a.SubjectID] = true
	}
	// Any approval wins over a rejection from another channel.
	assert.True(t, subjects["ad-mixed"])
	assert.True(t, subjects["ad-approve"])
}

func TestRunApprovedExecutes(t *testing.T) {
	execAPI := &execFake{status: meta.AdStatus{EffectiveStatus: "ACTIVE"}}
	o, l := newOrchestrator(t, &fakeAPI{}, nil, nil,
		&stubReader{name: "sheet", decisions: map[string]approval.Decision{"ad-1": approval.DecisionApproved}},
	)
	o.executor = executor.New(execAPI, l, testThresholds(), 0, nil)

	ctx := context.Background()
	_, err := l.Propose(ctx, ledger.CandidateAction{SubjectID: "ad-1", ActionKind: ledger.ActionPauseAd})
	require.NoError(t, err)

	summary, err := o.RunApproved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, summary.Executed)
	assert.False(t, summary.Failed())

	history, _ := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "ad-1", history[0].OriginalID)
}

// execFake satisfies the executor's platform interface.
type execFake struct {
	status meta.AdStatus
	paused []string
}

func (f *execFake) ListAds(ctx context.Context, adSetID string) ([]meta.Ad, error) { return nil, nil }
func (f *execFake) GetInsights(ctx context.Context, id string, w meta.Window) (meta.Insights, error) {
	return meta.Insights{}, nil
}
func (f *execFake) GetAdSet(ctx context.Context, id string) (*meta.AdSetDetail, error) {
	return nil, nil
}
func (f *execFake) CreateAdSet(ctx context.Context, p meta.CreateAdSetParams) (string, error) {
	return "", nil
}
func (f *execFake) CopyAd(ctx context.Context, adID, targetAdSetID string) (string, error) {
	return "", nil
}
func (f *execFake) GetAdStatus(ctx context.Context, adID string) (meta.AdStatus, error) {
	return f.status, nil
}
func (f *execFake) UpdateStatus(ctx context.Context, entityID, status string) error {
	f.paused = append(f.paused, entityID)
	return nil
}

func TestCheckTokenPermissions(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeAPI{
		token: &meta.TokenInfo{IsValid: true, Scopes: []string{"ads_management", "ads_read"}},
	}, nil, nil)
	require.NoError(t, o.CheckTokenPermissions(context.Background()))
}

func TestCheckTokenPermissionsMissingScope(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeAPI{
		token: &meta.TokenInfo{IsValid: true, Scopes: []string{"ads_read"}},
	}, nil, nil)
	err := o.CheckTokenPermissions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ads_management")
}

func TestCheckTokenPermissionsInvalidToken(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeAPI{token: &meta.TokenInfo{IsValid: false}}, nil, nil)
	require.Error(t, o.CheckTokenPermissions(context.Background()))
}

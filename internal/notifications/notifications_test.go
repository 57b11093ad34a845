package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rewardbridge/internal/external"
	"rewardbridge/internal/metrics"
	"rewardbridge/internal/types"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Notification
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

type mockEmail struct{ mock.Mock }

func (m *mockEmail) Send(ctx context.Context, msg external.Email) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type mockSlack struct{ mock.Mock }

func (m *mockSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	args := m.Called(ctx, channelID)
	return args.String(0), args.String(1), args.Error(2)
}

type countingRecorder struct {
	metrics.Noop
	mu         sync.Mutex
	deliveries map[string]int
}

func (r *countingRecorder) RecordDelivery(_ context.Context, channel, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deliveries == nil {
		r.deliveries = map[string]int{}
	}
	r.deliveries[channel+":"+result]++
}

func rewardItem() types.RewardItem {
	return types.RewardItem{
		ItemID:            "r-1",
		EmployeeName:      "Ada Lovelace",
		EmployeeEmail:     "ada@example.com",
		TargetDescription: "Close Q3 deals",
		RewardTier:        types.TierGold,
		GiftCardAmount:    decimal.NewFromInt(50),
		GiftCardCode:      "GC-1",
	}
}

func TestRender_MilestoneBirthdayAndAnniversary(t *testing.T) {
	emp := types.EmployeeRecord{ItemID: "e-1", Name: "Ada", Email: "ada@example.com"}

	bday := MilestoneDelivered(types.Milestone{Employee: emp, Type: types.MilestoneBirthday, Amount: decimal.NewFromInt(2)}, "VOUCH-1")
	require.NoError(t, Render(&bday))
	assert.Equal(t, "Happy Birthday, Ada!", bday.Subject)
	assert.Contains(t, bday.Body, "£2.00 gift card")
	assert.Contains(t, bday.Body, "Voucher: VOUCH-1")

	anniv := MilestoneDelivered(types.Milestone{Employee: emp, Type: types.AnniversaryType(5), YearsOfService: 5, Amount: decimal.NewFromInt(2)}, "V")
	require.NoError(t, Render(&anniv))
	assert.Equal(t, "Happy 5-year work anniversary, Ada!", anniv.Subject)
	assert.Contains(t, anniv.Body, "5 years with the company")
}

func TestRender_ApprovalDecision(t *testing.T) {
	approved := ApprovalDecision(rewardItem(), types.DecisionApprove, decimal.NewFromInt(50), "")
	require.NoError(t, Render(&approved))
	assert.Equal(t, "Your performance reward has been approved!", approved.Subject)
	assert.Contains(t, approved.Body, "£50.00 has been approved")
	assert.Contains(t, approved.Body, "separate email")

	delayed := ApprovalDecision(rewardItem(), types.DecisionApprove, decimal.NewFromInt(50), "")
	delayed.Data["IssuanceDelayed"] = true
	require.NoError(t, Render(&delayed))
	assert.Contains(t, delayed.Body, "still arranging your gift card")
	assert.NotContains(t, delayed.Body, "separate email")

	rejected := ApprovalDecision(rewardItem(), types.DecisionReject, decimal.Zero, "Target not met")
	require.NoError(t, Render(&rejected))
	assert.Contains(t, rejected.Body, "Target not met")

	noComment := ApprovalDecision(rewardItem(), types.DecisionReject, decimal.Zero, "")
	require.NoError(t, Render(&noComment))
	assert.Contains(t, noComment.Body, "Please contact your manager")
}

func TestRender_RemindersAndWarnings(t *testing.T) {
	reminder := OverdueReminder(Recipient{Name: "Sam"}, rewardItem(), 8)
	require.NoError(t, Render(&reminder))
	assert.Contains(t, reminder.Body, "pending approval for 8 days")

	warning := ExpiryWarning(rewardItem(), decimal.RequireFromString("12.5"), 1)
	require.NoError(t, Render(&warning))
	assert.Contains(t, warning.Body, "£12.50 remaining will expire in 1 day.")

	issued := GiftCardIssued(rewardItem(), "GC-9", "ASDA", decimal.NewFromInt(50), types.MustParseDate("2026-03-01"))
	require.NoError(t, Render(&issued))
	assert.Contains(t, issued.Body, "- Code: GC-9")
	assert.Contains(t, issued.Body, "- Expires: 2026-03-01")
}

func TestRender_UnknownKind(t *testing.T) {
	n := Notification{Kind: "nope"}
	assert.Error(t, Render(&n))
}

func TestDispatcher_SendNeverFailsAndCounts(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("down")}
	rec := &countingRecorder{}
	d := NewDispatcher(nil, rec, bad, good)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Send(ctx, FullyRedeemed(rewardItem()))

	require.Len(t, good.got, 1, "later sinks still run after a failure")
	n := good.got[0]
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Equal(t, "Gift card fully redeemed", n.Subject)
	assert.Equal(t, 1, rec.deliveries["bad:failed"])
	assert.Equal(t, 1, rec.deliveries["good:success"])
}

func TestEmailSink(t *testing.T) {
	provider := &mockEmail{}
	provider.On("Send", mock.Anything, mock.MatchedBy(func(e external.Email) bool {
		return e.To == "ada@example.com" && e.Subject == "S" && e.Category == string(KindFullyRedeemed) && e.ReferenceID == "n-1"
	})).Return("msg-1", nil).Once()

	sink := NewEmailSink(provider)
	n := Notification{ID: "n-1", Kind: KindFullyRedeemed, Audience: AudienceEmployee, To: Recipient{Email: "ada@example.com"}, Subject: "S"}
	require.NoError(t, sink.Notify(context.Background(), n))

	// Ops notifications and recipients without an address are skipped.
	require.NoError(t, sink.Notify(context.Background(), Notification{Audience: AudienceOps, To: Recipient{Email: "x@example.com"}}))
	require.NoError(t, sink.Notify(context.Background(), Notification{Audience: AudienceEmployee}))
	provider.AssertExpectations(t)
}

func TestSlackSink_Routing(t *testing.T) {
	client := &mockSlack{}
	client.On("PostMessageContext", mock.Anything, "U123").Return("c", "ts", nil).Once()
	client.On("PostMessageContext", mock.Anything, "#rewards").Return("c", "ts", nil).Twice()
	client.On("PostMessageContext", mock.Anything, "#alerts").Return("c", "ts", nil).Once()

	sink := NewSlackSink(client, "#rewards", "#alerts")
	ctx := context.Background()

	require.NoError(t, sink.Notify(ctx, Notification{Audience: AudienceManager, To: Recipient{SlackUserID: "U123"}, Subject: "s"}))
	require.NoError(t, sink.Notify(ctx, Notification{Audience: AudienceManager, Subject: "s"}))
	require.NoError(t, sink.Notify(ctx, Notification{Audience: AudienceOps, Subject: "ok"}))
	require.NoError(t, sink.Notify(ctx, Notification{Audience: AudienceOps, Failure: true, Subject: "bad"}))
	require.NoError(t, sink.Notify(ctx, Notification{Audience: AudienceEmployee, Subject: "ignored"}))

	client.AssertExpectations(t)
}

func TestSlackSink_Error(t *testing.T) {
	client := &mockSlack{}
	client.On("PostMessageContext", mock.Anything, "#rewards").Return("", "", errors.New("channel_not_found"))

	err := NewSlackSink(client, "#rewards", "").Notify(context.Background(), Notification{Audience: AudienceOps, Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("boom")}
	c := &recordingSink{name: "c", err: errors.New("bang")}
	m := NewMultiSink(a, b, c)

	assert.Equal(t, "a+b+c", m.Name())
	err := m.Notify(context.Background(), Notification{Kind: KindJobSummary, CreatedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "b: boom") && strings.Contains(err.Error(), "c: bang"))
	assert.Len(t, a.got, 1)
}

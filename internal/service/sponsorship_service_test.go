package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
)

type sponsorFixture struct {
	brand   *model.User
	founder *model.User
	content *ContentView
}

func newSponsorFixture(t *testing.T, e *testEnv, goal int64) *sponsorFixture {
	t.Helper()
	founder := e.user(t, "founder", model.UserTypeUser)
	brand := e.user(t, "acme", model.UserTypeBrand)
	c := e.community(t, founder.ID, "Green Street")
	return &sponsorFixture{brand: brand, founder: founder, content: e.need(t, founder.ID, c.ID, goal)}
}

func webhook(typ, intentID string) []byte {
	return []byte(`{"type":"` + typ + `","intent_id":"` + intentID + `"}`)
}

func TestSponsorshipRequiresBrand(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	_, err := e.sponsors.Create(context.Background(), f.founder.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 1000})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = e.sponsors.Create(context.Background(), f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 0})
	assert.ErrorIs(t, err, pkg.ErrInvalidParams)
}

func TestSponsorshipCreateSplitsFee(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)

	out, err := e.sponsors.Create(context.Background(), f.brand.ID, CreateSponsorshipInput{
		ContentID: f.content.ID, Amount: 5000, IdempotencyKey: "order-1",
	})
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.EqualValues(t, 750, out.Split.PlatformFee)
	assert.EqualValues(t, 4250, out.Split.NetAmount)
	assert.Equal(t, "pi_fake_1_secret", out.ClientSecret)
	assert.Equal(t, model.SponsorshipPending, out.Sponsorship.Status)
	assert.Equal(t, "usd", out.Sponsorship.Currency)

	require.Len(t, e.gateway.Requests, 1)
	req := e.gateway.Requests[0]
	assert.EqualValues(t, 5000, req.Amount)
	assert.EqualValues(t, 750, req.PlatformFee)
	assert.Equal(t, out.Sponsorship.ID, req.SponsorshipID)
}

func TestSponsorshipIdempotencyKeyReplays(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()
	in := CreateSponsorshipInput{ContentID: f.content.ID, Amount: 2000, IdempotencyKey: "order-1"}

	first, err := e.sponsors.Create(ctx, f.brand.ID, in)
	require.NoError(t, err)
	again, err := e.sponsors.Create(ctx, f.brand.ID, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Sponsorship.ID, again.Sponsorship.ID)
	assert.Equal(t, first.ClientSecret, again.ClientSecret)
	assert.Len(t, e.gateway.Requests, 1)

	// redis 丢失时由唯一键兜底
	e.mr.FlushAll()
	again, err = e.sponsors.Create(ctx, f.brand.ID, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Sponsorship.ID, again.Sponsorship.ID)
	assert.Len(t, e.gateway.Requests, 1)
}

func TestSponsorshipHardCap(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()

	_, err := e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000})
	require.NoError(t, err)

	// 剩余 10000-4250=5750，8000 的到账金额为 6800
	_, err = e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 8000})
	assert.ErrorIs(t, err, pkg.ErrAmountExceedsRemain)

	require.NoError(t, e.db.Model(&model.CommunityContent{}).Where("id = ?", f.content.ID).
		Update("current_funding", 5750).Error)
	_, err = e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 100})
	assert.ErrorIs(t, err, pkg.ErrFundingGoalReached)
}

func TestSponsorshipOnlyForOpenNeeds(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()

	_, err := e.contents.SetStatus(ctx, f.founder.ID, f.content.ID, model.ContentStatusRejected)
	require.NoError(t, err)
	_, err = e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 100})
	assert.ErrorIs(t, err, pkg.ErrNotFundable)

	_, err = e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: 9999, Amount: 100})
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestSponsorshipGatewayFailureReleasesAmount(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()
	e.gateway.CreateErr = errors.New("card network down")

	_, err := e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000})
	assert.ErrorIs(t, err, pkg.ErrPaymentFailed)

	pending, err := (&mysql.SponsorshipRepository{DB: e.db}).PendingTotal(f.content.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSponsorshipRetryAfterGatewayFailure(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()
	in := CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000, IdempotencyKey: "order-7"}

	e.gateway.CreateErr = errors.New("card network down")
	_, err := e.sponsors.Create(ctx, f.brand.ID, in)
	require.ErrorIs(t, err, pkg.ErrPaymentFailed)

	// 同一幂等键重试会真正发起支付
	e.gateway.CreateErr = nil
	out, err := e.sponsors.Create(ctx, f.brand.ID, in)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, model.SponsorshipPending, out.Sponsorship.Status)
	assert.NotEmpty(t, out.ClientSecret)
	require.Len(t, e.gateway.Requests, 1)
	assert.Equal(t, out.Sponsorship.ID, e.gateway.Requests[0].SponsorshipID)

	again, err := e.sponsors.Create(ctx, f.brand.ID, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, out.Sponsorship.ID, again.Sponsorship.ID)
}

func TestSponsorshipStaleHoldReleased(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	other := e.user(t, "globex", model.UserTypeBrand)
	ctx := context.Background()

	abandoned, err := e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000})
	require.NoError(t, err)

	_, err = e.sponsors.Create(ctx, other.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 8000})
	assert.ErrorIs(t, err, pkg.ErrAmountExceedsRemain)

	// 超过占用时长后未支付的额度释放
	e.sponsors.now = func() time.Time { return time.Now().Add(e.sponsors.HoldTTL + time.Minute) }
	out, err := e.sponsors.Create(ctx, other.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 8000})
	require.NoError(t, err)
	assert.EqualValues(t, 6800, out.Split.NetAmount)

	// 过期占用之后的迟到成功回调仍然入账
	require.NoError(t, e.sponsors.HandleWebhook(ctx, webhook("payment_intent.succeeded", abandoned.Sponsorship.PaymentIntentID), webhookSecret))
	got, err := e.contents.Get(f.content.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4250, got.CurrentFunding)
}

func TestWebhookCanceledReleasesHold(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()
	out, err := e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000})
	require.NoError(t, err)

	require.NoError(t, e.sponsors.HandleWebhook(ctx, webhook("payment_intent.canceled", out.Sponsorship.PaymentIntentID), webhookSecret))
	sp, err := (&mysql.SponsorshipRepository{DB: e.db}).FindByID(out.Sponsorship.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SponsorshipFailed, sp.Status)

	_, err = e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 11000})
	require.NoError(t, err)
}

func TestWebhookSettlesOnce(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()
	out, err := e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000})
	require.NoError(t, err)
	intent := out.Sponsorship.PaymentIntentID

	err = e.sponsors.HandleWebhook(ctx, webhook("payment_intent.succeeded", intent), "wrong")
	assert.ErrorIs(t, err, pkg.ErrInvalidSignature)

	for i := 0; i < 2; i++ {
		require.NoError(t, e.sponsors.HandleWebhook(ctx, webhook("payment_intent.succeeded", intent), webhookSecret))
	}
	got, err := e.contents.Get(f.content.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4250, got.CurrentFunding)
	assert.EqualValues(t, 5750, got.Funding.Remaining)

	require.Equal(t, 1, e.mailer.count())
	assert.Equal(t, f.brand.Email, e.mailer.sent[0].To)
	assert.Contains(t, e.mailer.sent[0].Body, "42.50")

	paid, err := e.sponsors.ListByContent(f.content.ID)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, model.SponsorshipPaid, paid[0].Status)

	mine, err := e.sponsors.Mine(f.brand.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	// 未知支付单直接确认
	require.NoError(t, e.sponsors.HandleWebhook(ctx, webhook("payment_intent.succeeded", "pi_unknown"), webhookSecret))
}

func TestWebhookFailureMarksFailed(t *testing.T) {
	e := newEnv(t)
	f := newSponsorFixture(t, e, 10000)
	ctx := context.Background()
	out, err := e.sponsors.Create(ctx, f.brand.ID, CreateSponsorshipInput{ContentID: f.content.ID, Amount: 5000})
	require.NoError(t, err)

	require.NoError(t, e.sponsors.HandleWebhook(ctx, webhook("payment_intent.payment_failed", out.Sponsorship.PaymentIntentID), webhookSecret))
	sp, err := (&mysql.SponsorshipRepository{DB: e.db}).FindByID(out.Sponsorship.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SponsorshipFailed, sp.Status)

	// 失败后再收到成功回调不会入账
	require.NoError(t, e.sponsors.HandleWebhook(ctx, webhook("payment_intent.succeeded", out.Sponsorship.PaymentIntentID), webhookSecret))
	got, _ := e.contents.Get(f.content.ID)
	assert.Zero(t, got.CurrentFunding)
	assert.Zero(t, e.mailer.count())
}

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/elastic"
	"Crowd_Conscious/internal/repository/mysql"
)

func TestCreateContentRequiresMembership(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	outsider := e.user(t, "outsider", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	ctx := context.Background()

	_, err := e.contents.Create(ctx, outsider.ID, CreateContentInput{CommunityID: c.ID, Type: model.ContentTypeNeed, Title: "x"})
	assert.ErrorIs(t, err, pkg.ErrNotMember)

	v := e.need(t, founder.ID, c.ID, 10000)
	assert.Equal(t, model.ContentStatusVoting, v.Status)
	require.NotNil(t, v.Funding)
	assert.EqualValues(t, 10000, v.Funding.Remaining)
	assert.Equal(t, calc.UrgencyUrgent, v.Funding.Urgency)
	require.NotNil(t, v.Award)
	// content_created 25 + first_proposal 100
	assert.EqualValues(t, 125, v.Award.Points)
	assert.EqualValues(t, 1, e.stats(t, founder.ID).ContentCreated)
}

func TestCreateContentValidation(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	ctx := context.Background()

	cases := []CreateContentInput{
		{CommunityID: c.ID, Type: "meme", Title: "x"},
		{CommunityID: c.ID, Type: model.ContentTypeNeed, Title: "  "},
		{CommunityID: c.ID, Type: model.ContentTypeNeed, Title: "x", FundingGoal: -1},
		{CommunityID: c.ID, Type: model.ContentTypePoll, Title: "x", FundingGoal: 100},
	}
	for _, in := range cases {
		_, err := e.contents.Create(ctx, founder.ID, in)
		assert.ErrorIs(t, err, pkg.ErrInvalidParams, "input %+v", in)
	}

	v, err := e.contents.Create(ctx, founder.ID, CreateContentInput{CommunityID: c.ID, Type: model.ContentTypePoll, Title: "Which park?"})
	require.NoError(t, err)
	assert.Nil(t, v.Funding)
}

func TestVoteOncePerUser(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	member := e.user(t, "member", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	e.join(t, member.ID, c.ID)
	v := e.need(t, founder.ID, c.ID, 5000)
	ctx := context.Background()

	res, err := e.contents.Vote(ctx, member.ID, v.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.EqualValues(t, 1, res.Votes.For)
	require.NotNil(t, res.Award)

	res, err = e.contents.Vote(ctx, member.ID, v.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Award)
	assert.EqualValues(t, 1, res.Votes.For)
	assert.EqualValues(t, 0, res.Votes.Against)
	assert.EqualValues(t, 1, e.stats(t, member.ID).VotesCast)

	res, err = e.contents.Vote(ctx, founder.ID, v.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Votes.Total)
	assert.InDelta(t, 50, res.Votes.ApprovalRate, 0.001)
}

func TestSetStatusTransitions(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	author := e.user(t, "author", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	e.join(t, author.ID, c.ID)
	v := e.need(t, author.ID, c.ID, 5000)
	ctx := context.Background()

	_, err := e.contents.SetStatus(ctx, author.ID, v.ID, model.ContentStatusApproved)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	before := e.stats(t, author.ID).TotalXP
	got, err := e.contents.SetStatus(ctx, founder.ID, v.ID, model.ContentStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.ContentStatusApproved, got.Status)
	assert.Equal(t, before+e.policy.Reward("content_approved"), e.stats(t, author.ID).TotalXP)

	_, err = e.contents.SetStatus(ctx, founder.ID, v.ID, model.ContentStatusRejected)
	assert.ErrorIs(t, err, pkg.ErrInvalidTransition)

	_, err = e.contents.Vote(ctx, founder.ID, v.ID, true)
	assert.ErrorIs(t, err, pkg.ErrInvalidTransition)

	got, err = e.contents.SetStatus(ctx, founder.ID, v.ID, model.ContentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.ContentStatusCompleted, got.Status)
}

func TestListByCommunityCursor(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	for i := 0; i < 3; i++ {
		e.need(t, founder.ID, c.ID, 100)
	}

	page, err := e.contents.ListByCommunity(c.ID, mysql.ContentFilter{}, 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotZero(t, page.NextID)

	next, err := e.contents.ListByCommunity(c.ID, mysql.ContentFilter{}, page.NextID, page.NextTS, 2)
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Zero(t, next.NextID)

	seen := map[uint64]bool{}
	for _, v := range append(page.Items, next.Items...) {
		seen[v.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestSearchDisabledWithoutIndex(t *testing.T) {
	e := newEnv(t)
	_, err := e.contents.Search(context.Background(), elastic.SearchQuery{Text: "garden"})
	assert.ErrorIs(t, err, pkg.ErrFeatureDisabled)
}

func TestSearchKeepsRelevanceOrder(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	first := e.need(t, founder.ID, c.ID, 100)
	second := e.need(t, founder.ID, c.ID, 200)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":3},"hits":[{"_id":"` +
			itoa(second.ID) + `"},{"_id":"999"},{"_id":"` + itoa(first.ID) + `"}]}}`))
	}))
	defer srv.Close()
	client, err := elastic.NewClient([]string{srv.URL})
	require.NoError(t, err)
	e.contents.index = &elastic.ContentIndex{ES: client}

	res, err := e.contents.Search(context.Background(), elastic.SearchQuery{Text: "garden"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, second.ID, res.Items[0].ID)
	assert.Equal(t, first.ID, res.Items[1].ID)
}

func TestEventRSVPAndAttendance(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	member := e.user(t, "member", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	e.join(t, member.ID, c.ID)
	ctx := context.Background()
	ev, err := e.contents.Create(ctx, founder.ID, CreateContentInput{CommunityID: c.ID, Type: model.ContentTypeEvent, Title: "Cleanup day"})
	require.NoError(t, err)

	added, err := e.contents.RSVP(ctx, member.ID, ev.ID)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = e.contents.RSVP(ctx, member.ID, ev.ID)
	require.NoError(t, err)
	assert.False(t, added)
	assert.EqualValues(t, e.policy.Reward("event_rsvp"), e.stats(t, member.ID).TotalXP)

	_, err = e.contents.ConfirmAttendance(ctx, member.ID, ev.ID, member.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	marked, err := e.contents.ConfirmAttendance(ctx, founder.ID, ev.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = e.contents.ConfirmAttendance(ctx, founder.ID, ev.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, marked)
	assert.EqualValues(t, 1, e.stats(t, member.ID).EventsAttended)

	list, err := e.contents.Attendees(ev.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Attended)

	need := e.need(t, founder.ID, c.ID, 100)
	_, err = e.contents.RSVP(ctx, member.ID, need.ID)
	assert.ErrorIs(t, err, pkg.ErrInvalidParams)
}

func TestContentImageReplacesOldFile(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	member := e.user(t, "member", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	e.join(t, member.ID, c.ID)
	v := e.need(t, founder.ID, c.ID, 100)
	ctx := context.Background()

	_, err := e.contents.UploadImage(ctx, member.ID, v.ID, pngHeader)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = e.contents.UploadImage(ctx, founder.ID, v.ID, []byte("plain text"))
	assert.ErrorIs(t, err, pkg.ErrUnsupportedMedia)

	url, err := e.contents.UploadImage(ctx, founder.ID, v.ID, pngHeader)
	require.NoError(t, err)
	assert.Contains(t, url, "memory://content-images/")
	first, _ := (&mysql.ContentRepository{DB: e.db}).FindByID(v.ID)
	require.True(t, e.store.Has("content-images", first.ImagePath))

	e.contents.uploader.now = func() time.Time { return time.Now().Add(time.Second) }
	_, err = e.contents.UploadImage(ctx, founder.ID, v.ID, pngHeader)
	require.NoError(t, err)
	assert.False(t, e.store.Has("content-images", first.ImagePath))
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/testutil"
)

func seedUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", Password: "x"}
	require.NoError(t, (&UserRepository{DB: db}).Create(u))
	return u
}

func seedCommunity(t *testing.T, db *gorm.DB, creator uint64) *model.Community {
	t.Helper()
	c, err := (&CommunityRepository{DB: db}).Create(&model.Community{
		Name:       "green-block",
		CoreValues: datatypes.JSON(`["sustainability"]`),
		CreatorID:  creator,
	})
	require.NoError(t, err)
	return c
}

func TestCommunityCreateJoinsFounder(t *testing.T) {
	db := testutil.NewDB(t)
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)

	assert.EqualValues(t, 1, c.MemberCount)
	m, err := (&CommunityMemberRepository{DB: db}).Get(c.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleFounder, m.Role)
}

func TestMemberJoinLeaveIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	c := seedCommunity(t, db, alice.ID)
	repo := &CommunityMemberRepository{DB: db}

	joined, err := repo.Join(&model.CommunityMember{CommunityID: c.ID, UserID: bob.ID, Role: model.RoleMember})
	require.NoError(t, err)
	assert.True(t, joined)
	joined, err = repo.Join(&model.CommunityMember{CommunityID: c.ID, UserID: bob.ID, Role: model.RoleMember})
	require.NoError(t, err)
	assert.False(t, joined)

	got, _ := (&CommunityRepository{DB: db}).FindByID(c.ID)
	assert.EqualValues(t, 2, got.MemberCount)

	left, err := repo.Leave(c.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, left)
	left, err = repo.Leave(c.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, left)

	got, _ = (&CommunityRepository{DB: db}).FindByID(c.ID)
	assert.EqualValues(t, 1, got.MemberCount)
}

func TestCommunityReconcile(t *testing.T) {
	db := testutil.NewDB(t)
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)
	repo := &CommunityRepository{DB: db}
	ctx := context.Background()

	require.NoError(t, repo.FixMemberCount(ctx, c.ID, 9))
	list, last, err := repo.ReconcileList(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, last)
	assert.EqualValues(t, 9, list[0].MemberCount)

	actual, err := repo.RealMemberCount(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, actual)
}

func TestContentCreateWritesOutbox(t *testing.T) {
	db := testutil.NewDB(t)
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)
	repo := &ContentRepository{DB: db}

	content := &model.CommunityContent{CommunityID: c.ID, AuthorID: u.ID, Type: model.ContentTypeNeed, Title: "Solar panels", Status: model.ContentStatusVoting, FundingGoal: 100000}
	require.NoError(t, repo.Create(content))

	events, err := (&OutboxRepository{DB: db}).List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventContentCreated, events[0].EventType)
	assert.Equal(t, content.ID, events[0].AggregateID)
	assert.Contains(t, events[0].Payload, `"community_id"`)
}

func TestContentVoteOncePerUser(t *testing.T) {
	db := testutil.NewDB(t)
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)
	repo := &ContentRepository{DB: db}
	content := &model.CommunityContent{CommunityID: c.ID, AuthorID: u.ID, Type: model.ContentTypePoll, Title: "Park day", Status: model.ContentStatusVoting}
	require.NoError(t, repo.Create(content))

	ok, err := repo.Vote(u.ID, content.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Vote(u.ID, content.ID, false)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := repo.FindByID(content.ID)
	assert.EqualValues(t, 1, got.VotesFor)
	assert.EqualValues(t, 0, got.VotesAgainst)
	var votes int64
	require.NoError(t, db.Model(&model.ContentVote{}).Where("content_id = ?", content.ID).Count(&votes).Error)
	assert.EqualValues(t, 1, votes)
}

func TestContentUpdateStatusGuarded(t *testing.T) {
	db := testutil.NewDB(t)
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)
	repo := &ContentRepository{DB: db}
	content := &model.CommunityContent{CommunityID: c.ID, AuthorID: u.ID, Type: model.ContentTypeNeed, Title: "Trees", Status: model.ContentStatusVoting}
	require.NoError(t, repo.Create(content))

	require.NoError(t, repo.UpdateStatus(content.ID, model.ContentStatusVoting, model.ContentStatusApproved))
	err := repo.UpdateStatus(content.ID, model.ContentStatusVoting, model.ContentStatusRejected)
	assert.ErrorIs(t, err, ErrStatusChanged)

	got, _ := repo.FindByID(content.ID)
	assert.Equal(t, model.ContentStatusApproved, got.Status)
}

func TestContentListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)
	repo := &ContentRepository{DB: db}
	for _, typ := range []string{model.ContentTypeNeed, model.ContentTypeEvent, model.ContentTypeNeed} {
		require.NoError(t, repo.Create(&model.CommunityContent{CommunityID: c.ID, AuthorID: u.ID, Type: typ, Title: typ, Status: model.ContentStatusVoting}))
	}

	all, err := repo.ListByCommunityCursor(c.ID, ContentFilter{}, 0, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	needs, err := repo.ListByCommunityCursor(c.ID, ContentFilter{Type: model.ContentTypeNeed}, 0, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, needs, 2)

	page, err := repo.ListByCommunityCursor(c.ID, ContentFilter{}, 0, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	last := page[1]
	rest, err := repo.ListByCommunityCursor(c.ID, ContentFilter{}, last.ID, last.CreatedAt, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, page[0].ID, rest[0].ID)
	assert.NotEqual(t, last.ID, rest[0].ID)
}

func seedNeed(t *testing.T, db *gorm.DB, goal int64) (*model.User, *model.CommunityContent) {
	t.Helper()
	u := seedUser(t, db, "alice")
	c := seedCommunity(t, db, u.ID)
	content := &model.CommunityContent{CommunityID: c.ID, AuthorID: u.ID, Type: model.ContentTypeNeed, Title: "Garden", Status: model.ContentStatusVoting, FundingGoal: goal}
	require.NoError(t, (&ContentRepository{DB: db}).Create(content))
	return u, content
}

func TestSponsorshipMarkPaidOnce(t *testing.T) {
	db := testutil.NewDB(t)
	_, content := seedNeed(t, db, 100000)
	brand := seedUser(t, db, "brand")
	repo := &SponsorshipRepository{DB: db}

	s := &model.Sponsorship{ContentID: content.ID, SponsorID: brand.ID, Amount: 10000, PlatformFee: 1500, NetAmount: 8500, Status: model.SponsorshipPending, IdempotencyKey: "k1"}
	require.NoError(t, repo.Create(s))
	require.NoError(t, repo.SetPaymentIntent(s.ID, "pi_1", "pi_1_secret"))

	hour := time.Now().Add(-time.Hour)
	pending, err := repo.PendingTotal(content.ID, hour)
	require.NoError(t, err)
	assert.EqualValues(t, 8500, pending)

	// 占用窗口之外的 pending 不计入
	pending, err = repo.PendingTotal(content.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	now := time.Now()
	paid, changed, err := repo.MarkPaid("pi_1", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SponsorshipPaid, paid.Status)

	_, changed, err = repo.MarkPaid("pi_1", now)
	require.NoError(t, err)
	assert.False(t, changed)

	got, _ := (&ContentRepository{DB: db}).FindByID(content.ID)
	assert.EqualValues(t, 8500, got.CurrentFunding)

	pending, _ = repo.PendingTotal(content.ID, hour)
	assert.EqualValues(t, 0, pending)

	failed, err := repo.MarkFailed("pi_1")
	require.NoError(t, err)
	assert.False(t, failed)

	list, err := repo.ListByContent(content.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSponsorshipFailByIDFreesKey(t *testing.T) {
	db := testutil.NewDB(t)
	_, content := seedNeed(t, db, 100000)
	brand := seedUser(t, db, "brand")
	repo := &SponsorshipRepository{DB: db}

	s := &model.Sponsorship{ContentID: content.ID, SponsorID: brand.ID, Amount: 1000, PlatformFee: 150, NetAmount: 850, Status: model.SponsorshipPending, IdempotencyKey: "9:retry"}
	require.NoError(t, repo.Create(s))
	require.NoError(t, repo.FailByID(s.ID, "9:retry"))

	_, err := repo.FindByIdempotencyKey("9:retry")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	got, err := repo.FindByID(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SponsorshipFailed, got.Status)
	assert.Equal(t, fmt.Sprintf("9:retry:failed:%d", s.ID), got.IdempotencyKey)

	again := &model.Sponsorship{ContentID: content.ID, SponsorID: brand.ID, Amount: 1000, PlatformFee: 150, NetAmount: 850, Status: model.SponsorshipPending, IdempotencyKey: "9:retry"}
	require.NoError(t, repo.Create(again))
}

func TestSponsorshipIdempotencyKeyUnique(t *testing.T) {
	db := testutil.NewDB(t)
	_, content := seedNeed(t, db, 100000)
	repo := &SponsorshipRepository{DB: db}

	require.NoError(t, repo.Create(&model.Sponsorship{ContentID: content.ID, SponsorID: 1, Amount: 100, NetAmount: 85, PlatformFee: 15, Status: model.SponsorshipPending, IdempotencyKey: "dup"}))
	assert.Error(t, repo.Create(&model.Sponsorship{ContentID: content.ID, SponsorID: 1, Amount: 100, NetAmount: 85, PlatformFee: 15, Status: model.SponsorshipPending, IdempotencyKey: "dup"}))

	got, err := repo.FindByIdempotencyKey("dup")
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.Amount)
}

func TestOutboxRetryUntilFailed(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &OutboxRepository{DB: db}
	ctx := context.Background()
	require.NoError(t, repo.Insert(model.EventXPAwarded, 1, map[string]any{"points": 10}))

	for i := 0; i < 3; i++ {
		list, err := repo.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NoError(t, repo.RetryUpdate(ctx, &list[0], 3))
	}
	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	n, err := repo.CountByStatus(ctx, model.OutboxFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStatsLockOrCreateAndSave(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &StatsRepository{DB: db}

	st, err := repo.LockOrCreate(7)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Level)

	st.TotalXP = 450
	st.Level = 3
	st.VotesCast = 4
	require.NoError(t, repo.Save(st))
	again, err := repo.LockOrCreate(7)
	require.NoError(t, err)
	assert.EqualValues(t, 450, again.TotalXP)
	assert.EqualValues(t, 4, again.VotesCast)

	empty, err := repo.Get(99)
	require.NoError(t, err)
	assert.Equal(t, 1, empty.Level)
	assert.EqualValues(t, 0, empty.TotalXP)
}

func TestStatsAchievementsAndTop(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &StatsRepository{DB: db}
	now := time.Now()

	ok, err := repo.InsertAchievement(1, "first_vote", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.InsertAchievement(1, "first_vote", now)
	require.NoError(t, err)
	assert.False(t, ok)

	for id, xp := range map[uint64]int64{1: 50, 2: 500, 3: 500} {
		st, err := repo.LockOrCreate(id)
		require.NoError(t, err)
		st.TotalXP = xp
		require.NoError(t, repo.Save(st))
	}
	top, err := repo.Top(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.EqualValues(t, 2, top[0].UserID)
	assert.EqualValues(t, 3, top[1].UserID)

	list, err := repo.ListAchievements(1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStatsFixLevelSkipsConcurrentWrite(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &StatsRepository{DB: db}
	ctx := context.Background()
	st, _ := repo.LockOrCreate(1)
	st.TotalXP = 400
	require.NoError(t, repo.Save(st))

	list, last, err := repo.ReconcileList(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, last)

	fixed, err := repo.FixLevel(ctx, 1, 300, 2)
	require.NoError(t, err)
	assert.False(t, fixed)
	fixed, err = repo.FixLevel(ctx, 1, 400, 3)
	require.NoError(t, err)
	assert.True(t, fixed)

	got, _ := repo.Get(1)
	assert.Equal(t, 3, got.Level)
}

func TestImpactSumAndVerify(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &ImpactRepository{DB: db}
	m1 := &model.ImpactMetric{CommunityID: 1, MetricType: "trees_planted", Value: 10, Unit: "trees", RecordedBy: 1}
	m2 := &model.ImpactMetric{CommunityID: 1, MetricType: "trees_planted", Value: 5, Unit: "trees", RecordedBy: 1}
	require.NoError(t, repo.Create(m1))
	require.NoError(t, repo.Create(m2))

	ok, err := repo.Verify(m1.ID, 9, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Verify(m1.ID, 9, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	sums, err := repo.SumByType(1)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.InDelta(t, 15, sums[0].Claimed, 1e-9)
	assert.InDelta(t, 10, sums[0].Verified, 1e-9)
	assert.EqualValues(t, 2, sums[0].Count)
}

func TestCorporateEnrollmentFlow(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &CorporateRepository{DB: db}

	acct := &model.CorporateAccount{CompanyName: "Acme", AdminID: 1, EmployeeLimit: 2, Investment: 1200000}
	require.NoError(t, repo.CreateAccount(acct))
	course := &model.Course{Title: "ESG 101", Modules: []model.CourseModule{
		{Title: "Energy", Position: 2, XPReward: 20},
		{Title: "Intro", Position: 1, XPReward: 10},
	}}
	require.NoError(t, repo.CreateCourse(course))

	got, err := repo.FindCourse(course.ID)
	require.NoError(t, err)
	require.Len(t, got.Modules, 2)
	assert.Equal(t, "Intro", got.Modules[0].Title)
	xp, _ := repo.SumModuleXP(course.ID, 5)
	assert.EqualValues(t, 30, xp)
	require.NoError(t, repo.AddModule(&model.CourseModule{CourseID: course.ID, Title: "Quiz", Position: 3}))
	xp, _ = repo.SumModuleXP(course.ID, 5)
	assert.EqualValues(t, 35, xp)

	e := &model.CourseEnrollment{CorporateAccountID: acct.ID, CourseID: course.ID, UserID: 5, Status: model.EnrollmentNotStarted}
	ok, err := repo.Enroll(e)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Enroll(&model.CourseEnrollment{CorporateAccountID: acct.ID, CourseID: course.ID, UserID: 5, Status: model.EnrollmentNotStarted})
	require.NoError(t, err)
	assert.False(t, ok)

	n, _ := repo.CountEmployees(acct.ID)
	assert.EqualValues(t, 1, n)

	added, err := repo.InsertCompletion(e.ID, got.Modules[0].ID)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.InsertCompletion(e.ID, got.Modules[0].ID)
	require.NoError(t, err)
	assert.False(t, added)
	done, _ := repo.CountCompletions(e.ID)
	assert.EqualValues(t, 1, done)

	e.Progress = 100
	e.CompletedModules = 2
	e.Status = model.EnrollmentCompleted
	require.NoError(t, repo.UpdateProgress(e))

	// 同一员工结业两门课只算一人
	water := &model.Course{Title: "Water"}
	require.NoError(t, repo.CreateCourse(water))
	second := &model.CourseEnrollment{CorporateAccountID: acct.ID, CourseID: water.ID, UserID: 5, Status: model.EnrollmentNotStarted}
	_, err = repo.Enroll(second)
	require.NoError(t, err)
	second.Progress = 100
	second.Status = model.EnrollmentCompleted
	require.NoError(t, repo.UpdateProgress(second))

	stats, err := repo.Stats(acct.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Employees)
	assert.EqualValues(t, 2, stats.Enrollments)
	assert.EqualValues(t, 1, stats.Completed)
	assert.InDelta(t, 100, stats.AvgProgress, 1e-9)

	cert := &model.Certification{EnrollmentID: e.ID, UserID: 5, CourseID: course.ID, VerificationCode: "CC-1"}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return (&CorporateRepository{DB: tx}).CreateCertification(cert)
	}))
	byCode, err := repo.FindCertificationByCode("CC-1")
	require.NoError(t, err)
	assert.Equal(t, cert.ID, byCode.ID)
	assert.False(t, byCode.IssuedAt.IsZero())
	byEnrollment, err := repo.FindCertificationByEnrollment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, byEnrollment.ID)
	_, err = repo.FindCertificationByEnrollment(second.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

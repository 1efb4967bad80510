package service

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/payment"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/repository/redis"
	"Crowd_Conscious/internal/storage"
	"Crowd_Conscious/internal/testutil"
)

const webhookSecret = "whsec_test"

// pngHeader 足够让 DetectContentType 识别为 png
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	db      *gorm.DB
	mr      *miniredis.Miniredis
	rdb     *goredis.Client
	policy  *config.Policy
	store   *storage.MemoryStore
	mailer  *fakeMailer
	gateway *payment.FakeGateway
	log     *zap.Logger

	xp          *GamificationService
	communities *CommunityService
	contents    *ContentService
	sponsors    *SponsorshipService
	impact      *ImpactService
	corporate   *CorporateService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	e := &testEnv{
		db:      db,
		mr:      mr,
		rdb:     rdb,
		policy:  config.DefaultPolicy(),
		store:   storage.NewMemoryStore(),
		mailer:  &fakeMailer{},
		gateway: payment.NewFakeGateway(webhookSecret),
		log:     zap.NewNop(),
	}
	uploader := NewUploader(e.store, 1<<20, e.log)
	e.xp = NewGamificationService(db, e.policy, &redis.LeaderboardRepository{RDB: rdb}, &redis.DistLock{RDB: rdb}, e.log)
	e.communities = NewCommunityService(db, e.policy, uploader, "community-images", e.log)
	e.contents = NewContentService(db, e.communities, e.xp, nil, uploader, "content-images", e.policy, e.log)
	e.sponsors = NewSponsorshipService(db, &redis.IdempotencyRepository{RDB: rdb}, e.gateway, e.mailer, e.policy, e.log)
	e.impact = NewImpactService(db, e.communities, e.policy, e.log)
	e.corporate = NewCorporateService(db, e.xp, e.policy, e.log)
	return e
}

func (e *testEnv) user(t *testing.T, name, userType string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", Password: "x", FullName: name, UserType: userType}
	require.NoError(t, (&mysql.UserRepository{DB: e.db}).Create(u))
	return u
}

func (e *testEnv) community(t *testing.T, founder uint64, name string) *model.Community {
	t.Helper()
	c, err := e.communities.Create(founder, CreateCommunityInput{Name: name, CoreValues: []string{"care"}})
	require.NoError(t, err)
	return c
}

func (e *testEnv) join(t *testing.T, userID, communityID uint64) {
	t.Helper()
	_, err := e.communities.Join(userID, communityID)
	require.NoError(t, err)
}

func (e *testEnv) need(t *testing.T, authorID, communityID uint64, goal int64) *ContentView {
	t.Helper()
	v, err := e.contents.Create(context.Background(), authorID, CreateContentInput{
		CommunityID: communityID, Type: model.ContentTypeNeed, Title: "Community garden", FundingGoal: goal,
	})
	require.NoError(t, err)
	return v
}

func (e *testEnv) stats(t *testing.T, userID uint64) *model.UserStats {
	t.Helper()
	st, err := (&mysql.StatsRepository{DB: e.db}).Get(userID)
	require.NoError(t, err)
	return st
}

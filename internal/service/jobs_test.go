package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/repository/elastic"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/testutil"
)

func TestOutboxRelayerRetriesThenFails(t *testing.T) {
	db := testutil.NewDB(t)
	outbox := &mysql.OutboxRepository{DB: db}
	require.NoError(t, outbox.Insert(model.EventContentCreated, 1, nil))
	require.NoError(t, outbox.Insert(model.EventContentCreated, 2, nil))
	ctx := context.Background()

	var delivered []uint64
	sender := func(_ context.Context, ob *model.OutboxEvent) error {
		if ob.AggregateID == 2 {
			return errors.New("broker down")
		}
		delivered = append(delivered, ob.AggregateID)
		return nil
	}
	r := NewOutboxRelayer(db, sender, time.Millisecond, 2, zap.NewNop())

	assert.Equal(t, 1, r.DrainOnce(ctx))
	assert.Equal(t, []uint64{1}, delivered)
	pending, err := outbox.CountByStatus(ctx, model.OutboxPending)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	assert.Equal(t, 0, r.DrainOnce(ctx))
	failed, err := outbox.CountByStatus(ctx, model.OutboxFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, failed)

	// 失败事件不再被读取
	assert.Equal(t, 0, r.DrainOnce(ctx))
	assert.Equal(t, []uint64{1}, delivered)
}

func TestBackgroundJobsStopWithContext(t *testing.T) {
	db := testutil.NewDB(t)
	ignore := goleak.IgnoreCurrent()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		NewOutboxRelayer(db, LogSender(zap.NewNop()), time.Millisecond, 0, zap.NewNop()).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, NewReconciler(db, "@every 1s", zap.NewNop()).Run(ctx))
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	goleak.VerifyNone(t, ignore)
}

func TestReconcilerRejectsBadSpec(t *testing.T) {
	db := testutil.NewDB(t)
	err := NewReconciler(db, "not a cron spec", zap.NewNop()).Run(context.Background())
	assert.Error(t, err)
}

func TestReconcilerFixesDrift(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	ctx := context.Background()
	_, err := e.xp.Award(ctx, founder.ID, config.ActionVote, 0)
	require.NoError(t, err)

	require.NoError(t, e.db.Model(&model.Community{}).Where("id = ?", c.ID).Update("member_count", 7).Error)
	require.NoError(t, e.db.Model(&model.UserStats{}).Where("user_id = ?", founder.ID).Update("level", 9).Error)

	r := NewReconciler(e.db, "", e.log)
	assert.Equal(t, 2, r.ReconcileOnce(ctx))
	assert.Equal(t, 0, r.ReconcileOnce(ctx))

	got, err := e.communities.Get(c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.MemberCount)
	assert.Equal(t, 2, e.stats(t, founder.ID).Level)
}

// bulkServer 模拟 _bulk 接口，按 action 行逐条回应
type bulkServer struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (s *bulkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		_, _ = w.Write([]byte(`{}`))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []map[string]any
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var line map[string]map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		action, ok := line["index"]
		if !ok {
			continue
		}
		id, _ := action["_id"].(string)
		item := map[string]any{"_id": id, "status": 201}
		if s.fail {
			item["status"] = 500
			item["error"] = map[string]any{"type": "es_rejected_execution_exception", "reason": "queue full"}
		} else {
			s.ids = append(s.ids, id)
		}
		items = append(items, map[string]any{"index": item})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": s.fail, "items": items})
}

func (s *bulkServer) indexed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestSearchSyncIndexesChangedContent(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")
	first := e.need(t, founder.ID, c.ID, 100)
	second := e.need(t, founder.ID, c.ID, 200)
	ctx := context.Background()

	bulk := &bulkServer{fail: true}
	srv := httptest.NewServer(bulk)
	defer srv.Close()
	client, err := elastic.NewClient([]string{srv.URL})
	require.NoError(t, err)
	syncer := NewSearchSync(e.db, client, 0, e.log)

	// 失败时水位不动，下一轮重放
	_, err = syncer.SyncOnce(ctx)
	assert.Error(t, err)
	assert.Empty(t, bulk.indexed())

	bulk.mu.Lock()
	bulk.fail = false
	bulk.mu.Unlock()
	n, err := syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{itoa(first.ID), itoa(second.ID)}, bulk.indexed())

	n, err = syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.contents.SetStatus(ctx, founder.ID, second.ID, model.ContentStatusApproved)
	require.NoError(t, err)
	n, err = syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ids := bulk.indexed()
	assert.Equal(t, itoa(second.ID), ids[len(ids)-1])
}

func TestContentIDOfSponsorshipEvent(t *testing.T) {
	id, err := contentIDOf(&model.OutboxEvent{EventType: model.EventSponsorshipPaid, AggregateID: 9, Payload: `{"content_id":42}`})
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	_, err = contentIDOf(&model.OutboxEvent{EventType: model.EventSponsorshipPaid, AggregateID: 9, Payload: `{}`})
	assert.Error(t, err)

	id, err = contentIDOf(&model.OutboxEvent{EventType: model.EventContentCreated, AggregateID: 7})
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/metrics"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/repository/elastic"
	"Crowd_Conscious/internal/repository/mysql"
)

// 影响搜索文档的事件；sponsorship.paid 会改变筹款金额
var searchEvents = []string{model.EventContentCreated, model.EventContentStatus, model.EventSponsorshipPaid}

// SearchSync 按 outbox 顺序把内容同步到 ES，水位只保存在内存，重启后全量重放
type SearchSync struct {
	es        *es.Client
	outbox    *mysql.OutboxRepository
	contents  *mysql.ContentRepository
	batchSize int
	interval  time.Duration
	lastID    uint64
	log       *zap.Logger
}

func NewSearchSync(db *gorm.DB, client *es.Client, interval time.Duration, log *zap.Logger) *SearchSync {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SearchSync{
		es:        client,
		outbox:    &mysql.OutboxRepository{DB: db},
		contents:  &mysql.ContentRepository{DB: db},
		batchSize: 200,
		interval:  interval,
		log:       log,
	}
}

func (w *SearchSync) Run(ctx context.Context) error {
	if err := elastic.EnsureIndex(ctx, w.es); err != nil {
		return err
	}
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Warn("search sync failed", zap.Error(err))
			}
		}
	}
}

// contentIDOf sponsorship 事件的聚合 id 是赞助单，内容 id 在载荷中
func contentIDOf(ob *model.OutboxEvent) (uint64, error) {
	if ob.EventType != model.EventSponsorshipPaid {
		return ob.AggregateID, nil
	}
	var body struct {
		ContentID uint64 `json:"content_id"`
	}
	if err := json.Unmarshal([]byte(ob.Payload), &body); err != nil {
		return 0, err
	}
	if body.ContentID == 0 {
		return 0, errors.New("payload has no content_id")
	}
	return body.ContentID, nil
}

// SyncOnce 处理一批事件，同一内容只索引一次；返回提交的文档数
func (w *SearchSync) SyncOnce(ctx context.Context) (int, error) {
	rows, err := w.outbox.ListAfter(ctx, w.lastID, searchEvents, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	seen := make(map[uint64]struct{}, len(rows))
	ids := make([]uint64, 0, len(rows))
	for i := range rows {
		id, err := contentIDOf(&rows[i])
		if err != nil {
			w.log.Warn("skip outbox event", zap.Uint64("id", rows[i].ID), zap.Error(err))
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	list, err := w.contents.FindByIDs(ids)
	if err != nil {
		return 0, err
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     w.es,
		Index:      elastic.IdxContent,
		FlushBytes: 5 << 20,
		NumWorkers: 2,
	})
	if err != nil {
		return 0, err
	}
	for i := range list {
		c := &list[i]
		doc, err := elastic.BuildContentDoc(c)
		if err != nil {
			w.log.Warn("build search doc failed", zap.Uint64("content_id", c.ID), zap.Error(err))
			continue
		}
		docID := strconv.FormatUint(c.ID, 10)
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: docID,
			Body:       bytes.NewReader(doc),
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err == nil {
					err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
				}
				w.log.Warn("index content failed", zap.String("content_id", docID), zap.Error(err))
			},
		})
		if err != nil {
			return 0, err
		}
	}
	if err := bi.Close(ctx); err != nil {
		return 0, err
	}
	stats := bi.Stats()
	metrics.SearchIndexed.Add(float64(stats.NumFlushed))
	if stats.NumFailed > 0 {
		// 保留水位，下一轮重试整批
		return int(stats.NumFlushed), fmt.Errorf("%d documents failed to index", stats.NumFailed)
	}
	w.lastID = rows[len(rows)-1].ID
	return int(stats.NumFlushed), nil
}

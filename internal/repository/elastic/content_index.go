package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"Crowd_Conscious/internal/model"
)

const IdxContent = "community_content_v1"

const contentMapping = `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"strict","properties":{
	"community_id":{"type":"keyword"},"author_id":{"type":"keyword"},"type":{"type":"keyword"},
	"status":{"type":"keyword"},"title":{"type":"text"},"description":{"type":"text"},
	"funding_goal":{"type":"long"},"current_funding":{"type":"long"},
	"created_at":{"type":"date"},"updated_at":{"type":"date"}
}}}`

// ContentDoc 搜索文档，只放筛选与展示需要的字段
type ContentDoc struct {
	CommunityID    string    `json:"community_id"`
	AuthorID       string    `json:"author_id"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	FundingGoal    int64     `json:"funding_goal"`
	CurrentFunding int64     `json:"current_funding"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SearchQuery 空字段不参与过滤
type SearchQuery struct {
	Text        string
	CommunityID uint64
	Type        string
	Status      string
	From        int
	Size        int
}

func NewClient(addresses []string) (*es.Client, error) {
	return es.NewClient(es.Config{Addresses: addresses})
}

func EnsureIndex(ctx context.Context, c *es.Client) error {
	exists, err := c.Indices.Exists([]string{IdxContent}, c.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", IdxContent, err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}
	res, err := c.Indices.Create(IdxContent,
		c.Indices.Create.WithBody(bytes.NewBufferString(contentMapping)),
		c.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index %s: %w", IdxContent, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", IdxContent, res.Status())
	}
	return nil
}

func BuildContentDoc(c *model.CommunityContent) ([]byte, error) {
	return json.Marshal(ContentDoc{
		CommunityID:    strconv.FormatUint(c.CommunityID, 10),
		AuthorID:       strconv.FormatUint(c.AuthorID, 10),
		Type:           c.Type,
		Status:         c.Status,
		Title:          c.Title,
		Description:    c.Description,
		FundingGoal:    c.FundingGoal,
		CurrentFunding: c.CurrentFunding,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	})
}

// BuildSearchBody 标题权重高于描述
func BuildSearchBody(q SearchQuery) ([]byte, error) {
	filters := []map[string]any{}
	if q.CommunityID > 0 {
		filters = append(filters, term("community_id", strconv.FormatUint(q.CommunityID, 10)))
	}
	if q.Type != "" {
		filters = append(filters, term("type", q.Type))
	}
	if q.Status != "" {
		filters = append(filters, term("status", q.Status))
	}
	boolQ := map[string]any{"filter": filters}
	if q.Text != "" {
		boolQ["must"] = []map[string]any{{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"title^3", "description"},
			},
		}}
	}
	size := q.Size
	if size <= 0 {
		size = 20
	}
	return json.Marshal(map[string]any{
		"from":    q.From,
		"size":    size,
		"query":   map[string]any{"bool": boolQ},
		"sort":    []any{"_score", map[string]any{"created_at": "desc"}},
		"_source": false,
	})
}

func term(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// ParseSearchResponse 取出命中的内容 id，保持相关度顺序
func ParseSearchResponse(r io.Reader) ([]uint64, int64, error) {
	var sr searchResponse
	if err := json.NewDecoder(r).Decode(&sr); err != nil {
		return nil, 0, err
	}
	ids := make([]uint64, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, sr.Hits.Total.Value, nil
}

// ContentIndex 内容搜索
type ContentIndex struct {
	ES *es.Client
}

func (x *ContentIndex) Search(ctx context.Context, q SearchQuery) ([]uint64, int64, error) {
	body, err := BuildSearchBody(q)
	if err != nil {
		return nil, 0, err
	}
	res, err := x.ES.Search(
		x.ES.Search.WithContext(ctx),
		x.ES.Search.WithIndex(IdxContent),
		x.ES.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("search %s: %s", IdxContent, res.Status())
	}
	return ParseSearchResponse(res.Body)
}

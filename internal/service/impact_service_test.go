package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
)

func TestImpactRecordVerifyReport(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	member := e.user(t, "member", model.UserTypeUser)
	admin := e.user(t, "root", model.UserTypeAdmin)
	c := e.community(t, founder.ID, "Green Street")
	e.join(t, member.ID, c.ID)
	need := e.need(t, founder.ID, c.ID, 1000)

	_, err := e.impact.Record(member.ID, RecordImpactInput{CommunityID: c.ID, MetricType: "trees_planted", Value: 3})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	_, err = e.impact.Record(founder.ID, RecordImpactInput{CommunityID: c.ID, MetricType: "trees_planted", Value: 0})
	assert.ErrorIs(t, err, pkg.ErrInvalidParams)

	m1, err := e.impact.Record(founder.ID, RecordImpactInput{CommunityID: c.ID, ContentID: need.ID, MetricType: "Trees_Planted", Value: 10, Unit: "trees"})
	require.NoError(t, err)
	assert.Equal(t, "trees_planted", m1.MetricType)
	_, err = e.impact.Record(founder.ID, RecordImpactInput{CommunityID: c.ID, MetricType: "trees_planted", Value: 5, Unit: "trees"})
	require.NoError(t, err)

	_, err = e.impact.Verify(founder.ID, m1.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	verified, err := e.impact.Verify(admin.ID, m1.ID)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, admin.ID, verified.VerifiedBy)
	_, err = e.impact.Verify(admin.ID, m1.ID)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.contents.SetStatus(ctx, founder.ID, need.ID, model.ContentStatusApproved)
	require.NoError(t, err)
	require.NoError(t, e.db.Model(&model.CommunityContent{}).Where("id = ?", need.ID).Update("current_funding", 800).Error)
	_, err = e.contents.SetStatus(ctx, founder.ID, need.ID, model.ContentStatusCompleted)
	require.NoError(t, err)

	r, err := e.impact.Report(c.ID)
	require.NoError(t, err)
	require.Len(t, r.Metrics, 1)
	assert.InDelta(t, 15, r.Metrics[0].Claimed, 0.001)
	assert.InDelta(t, 10, r.Metrics[0].Verified, 0.001)
	assert.EqualValues(t, 2, r.Metrics[0].Count)
	assert.EqualValues(t, 800, r.CompletedFunding)
	assert.Len(t, r.Recent, 2)

	// founder 3 : member 1
	require.Len(t, r.Distribution, 2)
	assert.Equal(t, founder.ID, r.Distribution[0].UserID)
	assert.InDelta(t, 75, r.Distribution[0].SharePercent, 0.001)
	assert.InDelta(t, 600, r.Distribution[0].FundingShare, 0.001)
	assert.InDelta(t, 25, r.Distribution[1].SharePercent, 0.001)
}

func TestImpactReportEmptyCommunity(t *testing.T) {
	e := newEnv(t)
	founder := e.user(t, "founder", model.UserTypeUser)
	c := e.community(t, founder.ID, "Green Street")

	r, err := e.impact.Report(c.ID)
	require.NoError(t, err)
	assert.Empty(t, r.Metrics)
	assert.Zero(t, r.CompletedFunding)
	require.Len(t, r.Distribution, 1)
	assert.InDelta(t, 100, r.Distribution[0].SharePercent, 0.001)

	_, err = e.impact.Report(404)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

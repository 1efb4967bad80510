package calc

import "sort"

type WeightedMember struct {
	UserID uint64
	Role   string
	Weight int
}

type MemberImpact struct {
	UserID       uint64  `json:"user_id"`
	Role         string  `json:"role"`
	VotingPower  int     `json:"voting_power"`
	SharePercent float64 `json:"impact_share_percent"`
	FundingShare float64 `json:"funding_share"`
}

// Distribute 按投票权重分配影响力；总权重为 0 时全部为 0。
// 结果按份额降序，份额相同保持输入顺序
func Distribute(members []WeightedMember, totalFunding float64) []MemberImpact {
	var total int
	for _, m := range members {
		if m.Weight > 0 {
			total += m.Weight
		}
	}
	out := make([]MemberImpact, len(members))
	for i, m := range members {
		out[i] = MemberImpact{UserID: m.UserID, Role: m.Role, VotingPower: m.Weight}
		if total == 0 || m.Weight <= 0 {
			continue
		}
		frac := float64(m.Weight) / float64(total)
		out[i].SharePercent = frac * 100
		out[i].FundingShare = frac * totalFunding
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SharePercent > out[j].SharePercent
	})
	return out
}

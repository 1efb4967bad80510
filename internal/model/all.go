package model

// All 需要 AutoMigrate 的表
func All() []any {
	return []any{
		&User{},
		&Community{},
		&CommunityMember{},
		&CommunityContent{},
		&ContentVote{},
		&EventRSVP{},
		&Sponsorship{},
		&ImpactMetric{},
		&UserStats{},
		&XPEvent{},
		&UserAchievement{},
		&CorporateAccount{},
		&Course{},
		&CourseModule{},
		&CourseEnrollment{},
		&ModuleCompletion{},
		&Certification{},
		&OutboxEvent{},
	}
}

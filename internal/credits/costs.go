package credits

import "tryon/internal/domain"

// MaxGenerationsPerRequest is the hard cap on parallel submissions for one request.
const MaxGenerationsPerRequest = 4

var imageUnitCost = map[string]int{
	"1K": 1,
	"2K": 3,
	"4K": 5,
}

var videoDurationCost = map[int]int{
	5:  10,
	10: 20,
	15: 30,
}

// ImageCost returns the credit cost of count images at the given resolution.
// Resolutions are expected to be normalized already; anything else is billed as 1K.
func ImageCost(resolution string, count int) int {
	if count <= 0 {
		return 0
	}
	unit, ok := imageUnitCost[resolution]
	if !ok {
		unit = imageUnitCost["1K"]
	}
	return unit * count
}

// VideoCost returns the credit cost of one video of the given duration in seconds.
func VideoCost(durationSeconds int) (int, bool) {
	cost, ok := videoDurationCost[durationSeconds]
	return cost, ok
}

// SupportedVideoDurations lists the durations VideoCost accepts, ascending.
func SupportedVideoDurations() []int {
	return []int{5, 10, 15}
}

// Entitlements are the per-plan limits.
type Entitlements struct {
	MonthlyCredits int
	MaxParallel    int
	Watermark      bool
}

var planEntitlements = map[domain.Plan]Entitlements{
	domain.PlanFree:     {MonthlyCredits: 10, MaxParallel: 1, Watermark: true},
	domain.PlanStarter:  {MonthlyCredits: 100, MaxParallel: 2},
	domain.PlanPro:      {MonthlyCredits: 400, MaxParallel: MaxGenerationsPerRequest},
	domain.PlanBusiness: {MonthlyCredits: 1500, MaxParallel: MaxGenerationsPerRequest},
}

// EntitlementsFor returns the limits of plan. Unknown plans get the free tier.
func EntitlementsFor(plan domain.Plan) Entitlements {
	if e, ok := planEntitlements[plan]; ok {
		return e
	}
	return planEntitlements[domain.PlanFree]
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	pointsEarned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_earned_total",
			Help: "Sum of points credited across all users.",
		},
	)

	pointsRedeemed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_redeemed_total",
			Help: "Sum of points debited across all users.",
		},
	)

	invitationRewards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invitation_rewards_total",
			Help: "Invitation rewards granted (one per rewarded IP).",
		},
	)

	redemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardkey_redemptions_total",
			Help: "Successful points-for-card-key redemptions, by key type.",
		},
		[]string{"type"},
	)
)

func init() {
	register(pointsEarned, pointsRedeemed, invitationRewards, redemptions)
}

func AddPointsEarned(n int64)   { pointsEarned.Add(float64(n)) }
func AddPointsRedeemed(n int64) { pointsRedeemed.Add(float64(n)) }
func IncInvitationRewards()     { invitationRewards.Inc() }

func IncRedemptions(keyType string) {
	redemptions.WithLabelValues(keyType).Inc()
}

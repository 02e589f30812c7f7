package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recommendationsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_ai_recommendations_received_total",
	Help: "Total number of AI recommendations accepted by intake",
}, []string{"action_type"})

var transitionsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_transitions_total",
	Help: "Total number of successful state machine transitions",
}, []string{"entity", "op"})

var concurrencyConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_concurrency_conflicts_total",
	Help: "Total number of optimistic transitions lost to a concurrent writer",
}, []string{"entity"})

var coolingOffPromptsSent = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_cooling_off_prompts_sent_total",
	Help: "Total number of cooling-off prompts delivered to users",
})

// Package mlclassifier defines the contract with the external ML
// classifier service: the request/response shapes the strategy selector
// consumes.
package mlclassifier

import "github.com/coderun/orchestrator/domain"

// Request is sent to the classifier's /classify/ endpoint.
type Request struct {
	TaskDescription string `json:"task_description"`
}

// TrainingFeedback is sent to the classifier's /training/feedback endpoint
// so user ratings can inform future classifications.
type TrainingFeedback struct {
	TaskDescription string  `json:"task_description"`
	TaskID          string  `json:"task_id"`
	Sentiment       string  `json:"sentiment"`
	Rating          float64 `json:"rating"`
}

// Response is the classifier's verdict on a task description.
type Response struct {
	TaskType          domain.TaskType   `json:"task_type"`
	Complexity        domain.Complexity `json:"complexity"`
	Confidence        float64           `json:"confidence"`
	Reasoning         string            `json:"reasoning"`
	ClassifierUsed    string            `json:"classifier_used"`
	SuggestedStrategy string            `json:"suggested_strategy"`
	EstimatedTokens   int               `json:"estimated_tokens"`
}

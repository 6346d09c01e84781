package httpserver

import (
	"github.com/quillcms/citation-importer/internal/domain"
)

// Import flow request/response types for JSON serialization.

type startImportRequest struct {
	Citations string `json:"citations" validate:"required"`
	ItemType  string `json:"item_type,omitempty" validate:"omitempty,max=64"`
}

type startImportResponse struct {
	SessionID   string `json:"session_id"`
	Total       int    `json:"total"`
	ReviewToken string `json:"review_token"`
	// Notice is set for large batches that will be paced in segments.
	Notice string `json:"notice,omitempty"`
}

type reviewImportResponse struct {
	SessionID    string                    `json:"session_id"`
	ItemType     string                    `json:"item_type"`
	Items        []domain.ResolvedCitation `json:"items"`
	ConfirmToken string                    `json:"confirm_token"`
}

type confirmImportRequest struct {
	Keys     []string `json:"keys" validate:"required,min=1,dive,required"`
	ItemType string   `json:"item_type,omitempty" validate:"omitempty,max=64"`
}

type confirmImportResponse struct {
	SessionID string                 `json:"session_id"`
	Created   int                    `json:"created"`
	Skipped   int                    `json:"skipped"`
	Failed    int                    `json:"failed"`
	Outcomes  []domain.ImportOutcome `json:"outcomes"`
}

func newConfirmImportResponse(sessionID string, outcomes []domain.ImportOutcome) confirmImportResponse {
	resp := confirmImportResponse{
		SessionID: sessionID,
		Outcomes:  outcomes,
	}
	for _, o := range outcomes {
		switch o.Status {
		case domain.ImportOutcomeCreated:
			resp.Created++
		case domain.ImportOutcomeSkipped:
			resp.Skipped++
		case domain.ImportOutcomeFailed:
			resp.Failed++
		}
	}
	return resp
}

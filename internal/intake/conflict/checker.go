// Package conflict talks to the firm's conflict-of-interest checker. The
// checker is advisory: a degraded or unreachable checker never blocks the
// conversation, it only leaves the verdict pending for follow-up.
package conflict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harborlaw/intake/internal/intake/domain"
	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

// Request carries the identity snapshot submitted for a conflict check.
type Request struct {
	ConversationID string
	FirmID         string
	Identity       map[string]string
}

// Result is the checker's verdict plus any instructions it issues.
type Result struct {
	Status          domain.ConflictStatus
	Confidence      float64
	CheckedFields   []string
	Details         string
	Stop            bool
	StopReason      string
	AdditionalGoals []domain.Goal
}

// Checker runs a conflict-of-interest check against external firm records.
type Checker interface {
	Check(ctx context.Context, req Request) (Result, error)
}

// HTTPChecker calls a remote conflict checker endpoint.
type HTTPChecker struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPChecker creates a checker that POSTs snapshots to the given URL.
func NewHTTPChecker(url, apiKey string, client *http.Client) *HTTPChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPChecker{url: url, apiKey: apiKey, client: client}
}

type checkRequest struct {
	ConversationID string            `json:"conversation_id"`
	FirmID         string            `json:"firm_id"`
	Identity       map[string]string `json:"identity"`
}

type checkResponse struct {
	Status          string      `json:"status"`
	Confidence      float64     `json:"confidence"`
	CheckedFields   []string    `json:"checked_fields"`
	Details         string      `json:"details"`
	Stop            bool        `json:"stop"`
	StopReason      string      `json:"stop_reason"`
	AdditionalGoals []goalEntry `json:"additional_goals"`
}

type goalEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

// Check submits the snapshot and decodes the verdict. Transport failures,
// timeouts, and non-200 responses surface as CodeIntakeConflictCheckDegraded
// so the caller can fall back to a pending verdict.
func (h *HTTPChecker) Check(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(checkRequest{
		ConversationID: req.ConversationID,
		FirmID:         req.FirmID,
		Identity:       req.Identity,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal conflict check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build conflict check request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, degraded(fmt.Sprintf("conflict checker unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, degraded(fmt.Sprintf("conflict checker returned %s", resp.Status))
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, degraded(fmt.Sprintf("decode conflict check response: %v", err))
	}

	status := domain.ConflictStatusFromLabel(decoded.Status)
	if status == domain.ConflictStatusUnspecified {
		return Result{}, degraded(fmt.Sprintf("conflict checker returned unknown status %q", decoded.Status))
	}

	result := Result{
		Status:        status,
		Confidence:    decoded.Confidence,
		CheckedFields: decoded.CheckedFields,
		Details:       decoded.Details,
		Stop:          decoded.Stop,
		StopReason:    decoded.StopReason,
	}
	for _, entry := range decoded.AdditionalGoals {
		if entry.ID == "" {
			continue
		}
		priority := domain.GoalPriorityFromLabel(entry.Priority)
		if priority == domain.GoalPriorityUnspecified {
			priority = domain.GoalPriorityImportant
		}
		result.AdditionalGoals = append(result.AdditionalGoals, domain.Goal{
			ID:          entry.ID,
			Description: entry.Description,
			Priority:    priority,
			Category:    entry.Category,
			Source:      domain.GoalSourceConflictChecker,
		})
	}
	return result, nil
}

func degraded(message string) error {
	return apperrors.New(apperrors.CodeIntakeConflictCheckDegraded, message)
}

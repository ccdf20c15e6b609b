// Package web provides the HTTP control API for workflow runs.
package web

import "github.com/dukex/gragraf/pkg/models"

// DecisionRequest answers the pending approval request of a run.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string `json:"comment"`
}

// RunResponse is the state of one run as seen by the controller.
type RunResponse struct {
	ThreadID  string                   `json:"thread_id"`
	Session   *models.RunSession       `json:"session"`
	Interrupt *models.InterruptRequest `json:"interrupt,omitempty"`
}

func newRunResponse(session *models.RunSession, interrupt *models.InterruptRequest) RunResponse {
	return RunResponse{ThreadID: session.ThreadID, Session: session, Interrupt: interrupt}
}

// internal/controller/api_message_controller.go
package controller

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waboost/outreach-engine/internal/service"
)

type APIMessageController struct {
	Queue *service.APIQueueService
}

// SubmitMessage queues an individually submitted message. Replaying a
// request_id returns the original record with 200 instead of 201.
func (c *APIMessageController) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	msg, created, err := c.Queue.Submit(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, msg)
}

// GetMessage looks an API message up by its request id.
func (c *APIMessageController) GetMessage(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	msg, err := c.Queue.Messages.GetByRequestID(requestID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msg == nil {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

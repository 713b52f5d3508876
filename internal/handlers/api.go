package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"sportarr/internal/clients/indexers"
	"sportarr/internal/core"
)

type APIHandler struct {
	manager *core.Manager
}

func NewAPIHandler(manager *core.Manager) *APIHandler {
	return &APIHandler{manager: manager}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func pathID(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

// Search fans a query out across all enabled indexers and returns the
// ranked candidate list, plus per-indexer errors for partial results.
func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		EventDate  string `json:"event_date,omitempty"`
		Categories []int  `json:"categories,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	search := indexers.SearchRequest{Query: req.Query, Categories: req.Categories}
	if req.EventDate != "" {
		eventDate, err := time.Parse("2006-01-02", req.EventDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "event_date must be YYYY-MM-DD")
			return
		}
		search.EventDate = eventDate
	}

	result, err := h.manager.Search(r.Context(), search)
	if err != nil {
		if errors.Is(err, core.ErrNoIndexerAvailable) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error().Err(err).Str("query", req.Query).Msg("search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Grab dispatches a previously returned search candidate to a download
// client and returns the tracked download created for it.
func (h *APIHandler) Grab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidate core.SearchCandidate `json:"candidate"`
		Category  string               `json:"category,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Candidate.Title == "" {
		respondError(w, http.StatusBadRequest, "candidate is required")
		return
	}

	tracked, err := h.manager.Grab(r.Context(), req.Candidate, req.Category)
	if err != nil {
		if errors.Is(err, core.ErrNoClientAvailable) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		var dispatchErr *core.DispatchError
		if errors.As(err, &dispatchErr) {
			respondJSON(w, http.StatusBadGateway, map[string]string{
				"error":  dispatchErr.Error(),
				"reason": dispatchErr.Reason,
			})
			return
		}
		log.Error().Err(err).Str("title", req.Candidate.Title).Msg("grab failed")
		respondError(w, http.StatusInternalServerError, "grab failed")
		return
	}
	respondJSON(w, http.StatusCreated, tracked)
}

func (h *APIHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	downloads, err := h.manager.TrackedRepo.GetAll()
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch download queue")
		respondError(w, http.StatusInternalServerError, "failed to fetch queue")
		return
	}
	respondJSON(w, http.StatusOK, downloads)
}

func (h *APIHandler) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	td, err := h.manager.TrackedRepo.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch download")
		return
	}
	if td == nil {
		respondError(w, http.StatusNotFound, "download not found")
		return
	}
	respondJSON(w, http.StatusOK, td)
}

// DeleteQueueItem removes a tracked download. remove_from_client=true also
// removes the item from its download client; delete_data=true drops the
// downloaded files too.
func (h *APIHandler) DeleteQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	fromClient := r.URL.Query().Get("remove_from_client") == "true"
	deleteData := r.URL.Query().Get("delete_data") == "true"

	if err := h.manager.RemoveTracked(r.Context(), id, fromClient, deleteData); err != nil {
		log.Error().Err(err).Int("id", id).Msg("failed to remove download")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// PollQueue forces one polling pass outside the schedule.
func (h *APIHandler) PollQueue(w http.ResponseWriter, r *http.Request) {
	h.manager.PollNow(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{"status": "polled"})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"sportarr/internal/database/models"
)

func (h *APIHandler) GetIndexers(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.IndexerRepo.GetAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch indexers")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *APIHandler) AddIndexer(w http.ResponseWriter, r *http.Request) {
	var cfg models.IndexerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.manager.IndexerRepo.Create(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Info().Str("name", cfg.Name).Str("kind", string(cfg.Kind)).Msg("indexer added")
	respondJSON(w, http.StatusCreated, cfg)
}

func (h *APIHandler) UpdateIndexer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var cfg models.IndexerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.ID = id
	if err := h.manager.IndexerRepo.Update(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *APIHandler) DeleteIndexer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.manager.IndexerRepo.Delete(id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete indexer")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// TestIndexer checks connectivity for a config without saving it, so the
// settings form can validate before committing.
func (h *APIHandler) TestIndexer(w http.ResponseWriter, r *http.Request) {
	var cfg models.IndexerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.manager.TestIndexer(r.Context(), cfg); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *APIHandler) GetDownloadClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.ClientRepo.GetAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch download clients")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *APIHandler) AddDownloadClient(w http.ResponseWriter, r *http.Request) {
	var cfg models.DownloadClientConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.manager.ClientRepo.Create(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Info().Str("name", cfg.Name).Str("kind", string(cfg.Kind)).Msg("download client added")
	respondJSON(w, http.StatusCreated, cfg)
}

func (h *APIHandler) UpdateDownloadClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var cfg models.DownloadClientConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.ID = id
	if err := h.manager.ClientRepo.Update(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *APIHandler) DeleteDownloadClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.manager.ClientRepo.Delete(id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete download client")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *APIHandler) TestDownloadClient(w http.ResponseWriter, r *http.Request) {
	var cfg models.DownloadClientConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cfg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.manager.TestClient(r.Context(), cfg); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *APIHandler) GetPathMappings(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.MappingRepo.GetAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch path mappings")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *APIHandler) AddPathMapping(w http.ResponseWriter, r *http.Request) {
	var m models.RemotePathMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.manager.MappingRepo.Create(&m); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *APIHandler) UpdatePathMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var m models.RemotePathMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m.ID = id
	if err := h.manager.MappingRepo.Update(&m); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *APIHandler) DeletePathMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.manager.MappingRepo.Delete(id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete path mapping")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"sportarr/internal/config"
	"sportarr/internal/core"
)

type Server struct {
	config     *config.Config
	manager    *core.Manager
	hub        *Hub
	httpServer *http.Server
	apiHandler *APIHandler
}

func NewServer(cfg *config.Config, manager *core.Manager, hub *Hub) *Server {
	return &Server{
		config:     cfg,
		manager:    manager,
		hub:        hub,
		apiHandler: NewAPIHandler(manager),
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.App.Port),
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Info().Int("port", s.config.App.Port).Msg("starting http server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	// Search and dispatch
	api.HandleFunc("/search", s.apiHandler.Search).Methods("POST")
	api.HandleFunc("/grab", s.apiHandler.Grab).Methods("POST")

	// Download queue
	api.HandleFunc("/queue", s.apiHandler.GetQueue).Methods("GET")
	api.HandleFunc("/queue/poll", s.apiHandler.PollQueue).Methods("POST")
	api.HandleFunc("/queue/{id}", s.apiHandler.GetQueueItem).Methods("GET")
	api.HandleFunc("/queue/{id}", s.apiHandler.DeleteQueueItem).Methods("DELETE")

	// Indexer settings
	api.HandleFunc("/indexers", s.apiHandler.GetIndexers).Methods("GET")
	api.HandleFunc("/indexers", s.apiHandler.AddIndexer).Methods("POST")
	api.HandleFunc("/indexers/test", s.apiHandler.TestIndexer).Methods("POST")
	api.HandleFunc("/indexers/{id}", s.apiHandler.UpdateIndexer).Methods("PUT")
	api.HandleFunc("/indexers/{id}", s.apiHandler.DeleteIndexer).Methods("DELETE")

	// Download client settings
	api.HandleFunc("/downloadclients", s.apiHandler.GetDownloadClients).Methods("GET")
	api.HandleFunc("/downloadclients", s.apiHandler.AddDownloadClient).Methods("POST")
	api.HandleFunc("/downloadclients/test", s.apiHandler.TestDownloadClient).Methods("POST")
	api.HandleFunc("/downloadclients/{id}", s.apiHandler.UpdateDownloadClient).Methods("PUT")
	api.HandleFunc("/downloadclients/{id}", s.apiHandler.DeleteDownloadClient).Methods("DELETE")

	// Remote path mappings
	api.HandleFunc("/remotepathmappings", s.apiHandler.GetPathMappings).Methods("GET")
	api.HandleFunc("/remotepathmappings", s.apiHandler.AddPathMapping).Methods("POST")
	api.HandleFunc("/remotepathmappings/{id}", s.apiHandler.UpdatePathMapping).Methods("PUT")
	api.HandleFunc("/remotepathmappings/{id}", s.apiHandler.DeletePathMapping).Methods("DELETE")

	// System
	api.HandleFunc("/status", s.apiHandler.GetSystemStatus).Methods("GET")
	api.HandleFunc("/events", s.hub.ServeWS).Methods("GET")

	return router
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

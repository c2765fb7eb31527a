package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"findash/internal/auth"
	"findash/internal/core"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.authProvider.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		// Deliberately uniform: never reveal which part was wrong.
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}

type datasetPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed listing datasets", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}

	// Dataset-list delivery drives the view model's initial selection.
	if err := s.vm.DatasetsArrived(r.Context(), datasets); err != nil {
		slog.WarnContext(r.Context(), "Initial dashboard load failed", "error", err)
	}

	out := make([]datasetPayload, len(datasets))
	for i, d := range datasets {
		out[i] = datasetPayload{ID: d.ID, Name: d.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": out,
		"active":   s.vm.ActiveDataset(),
	})
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.vm.CreateDataset(r.Context(), req.Name)
	if errors.Is(err, core.ErrEmptyName) {
		writeError(w, http.StatusBadRequest, "dataset name is required")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed creating dataset", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create dataset")
		return
	}

	writeJSON(w, http.StatusCreated, datasetPayload{ID: created.ID, Name: created.Name})
}

type filePayload struct {
	ID               string `json:"id"`
	FileName         string `json:"fileName"`
	TransactionCount int    `json:"transactionCount"`
	ImportedAt       int64  `json:"importedAt"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("id")

	files, err := s.store.ListImportedFiles(r.Context(), datasetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed listing imported files", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	out := make([]filePayload, len(files))
	for i, f := range files {
		out[i] = filePayload{
			ID:               f.ID,
			FileName:         f.FileName,
			TransactionCount: f.TransactionCount,
			ImportedAt:       f.ImportedAt.Unix(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

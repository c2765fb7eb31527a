package http

import (
	"errors"
	"log/slog"
	"net/http"

	"findash/internal/dashboard"
	"findash/internal/spreadsheet"
	"findash/internal/storage"
)

// maxUploadBytes bounds one upload batch in memory.
const maxUploadBytes = 32 << 20

// handleUpload imports the files of a multipart batch strictly one at a
// time. A failure aborts the remaining files; batches already committed
// stay committed and are reported in the response.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("id")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files in upload")
		return
	}

	if err := s.vm.SelectDataset(r.Context(), datasetID); err != nil {
		slog.ErrorContext(r.Context(), "Dataset selection failed", "dataset", datasetID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to select dataset")
		return
	}

	uploads := make([]dashboard.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload part: "+h.Filename)
			return
		}
		defer f.Close()
		uploads = append(uploads, dashboard.Upload{Name: h.Filename, Content: f})
	}

	imported, err := s.vm.UploadFiles(r.Context(), uploads)
	if imported > 0 {
		s.dashCache.Purge()
		if session, serr := sessionFromContext(r.Context()); serr == nil {
			slog.InfoContext(r.Context(), "Upload batch imported",
				"dataset", datasetID,
				"files", imported,
				"user", session.Email)
		}
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, spreadsheet.ErrUnreadableFile) {
			status = http.StatusUnprocessableEntity
		}
		slog.ErrorContext(r.Context(), "Upload batch aborted",
			"dataset", datasetID,
			"imported", imported,
			"error", err)
		writeJSON(w, status, map[string]any{
			"error":    "upload failed",
			"imported": imported,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"imported": imported})
}

// handleDeleteImport cascades one import batch after explicit confirmation
// (?confirm=true).
func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("id")
	fileID := r.PathValue("fileID")
	confirmed := r.URL.Query().Get("confirm") == "true"

	if err := s.vm.SelectDataset(r.Context(), datasetID); err != nil {
		slog.ErrorContext(r.Context(), "Dataset selection failed", "dataset", datasetID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to select dataset")
		return
	}

	err := s.vm.DeleteImport(r.Context(), fileID, confirmed)
	switch {
	case errors.Is(err, dashboard.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, "deletion requires confirm=true")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "imported file not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete import failed",
			"dataset", datasetID,
			"file_id", fileID,
			"error", err)
		writeError(w, http.StatusBadGateway, "failed to delete import")
		return
	}

	s.dashCache.Purge()
	writeJSON(w, http.StatusOK, map[string]string{"deleted": fileID})
}

package hubserver

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/id"
)

const maxUploadBytes = 16 << 20 // 16MB

// uploadResponse is the wire shape POST /api/upload returns (spec.md §4.5
// "accepts an image, stores it under a server-managed path").
type uploadResponse struct {
	Path string `json:"path"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeAPIErr(w, apperr.Wrap(apperr.Validation, "parse upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErr(w, apperr.Wrap(apperr.Validation, "read upload field", err))
		return
	}
	defer file.Close()

	name, err := s.saveUpload(file, header)
	if err != nil {
		writeAPIErr(w, err)
		return
	}

	writeAPIJSON(w, uploadResponse{
		Path: filepath.Join(s.cfg.UploadsDir(), name),
		Name: header.Filename,
		URL:  "/uploads/" + name,
	})
}

func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadsDir(), 0o750); err != nil {
		return "", apperr.Wrap(apperr.Persistence, "create uploads dir", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := id.Generate() + ext
	dst, err := os.OpenFile(filepath.Join(s.cfg.UploadsDir(), name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", apperr.Wrap(apperr.Persistence, "create upload file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", apperr.Wrap(apperr.Persistence, "write upload file", err)
	}
	return name, nil
}

func writeAPIJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := apperr.KindOf(err); ok && kind == apperr.Validation {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

package hubserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUpload_StoresFileUnderUploadsDir(t *testing.T) {
	s := newTestServerInstance(t)
	body, contentType := multipartUpload(t, "shot.png", []byte("fake-image-bytes"))

	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	s.handleUpload(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "shot.png", resp.Name)
	assert.Contains(t, resp.URL, "/uploads/")
	assert.FileExists(t, resp.Path)
}

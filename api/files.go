package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"chatpilot/model"
)

// Files is the client for the multipart file-upload endpoint used to ground
// completions in local files.
type Files struct {
	t *Transport
}

// NewFiles wraps the transport with the file endpoint.
func NewFiles(t *Transport) *Files {
	return &Files{t: t}
}

// Upload sends the file at path to POST /files/ and returns the server's
// record of it.
func (f *Files) Upload(ctx context.Context, path string) (*model.UploadedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not finalize form: %w", err)
	}

	req, err := f.t.newRequest(ctx, http.MethodPost, "/files/", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := f.t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out model.UploadedFile
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("upload response: %w", err)
	}
	return &out, nil
}

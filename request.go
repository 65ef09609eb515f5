package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

var errNoUpload = errors.New(MsgNoUpload)

// readUpload extracts the image bytes from a /predict request. The body may
// be multipart form data with a "file" field, JSON with a base64 "image"
// field, or the raw image.
func readUpload(r *http.Request, maxBytes int64) ([]byte, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "multipart/form-data":
		return handleMultipartRequest(r, maxBytes)
	case mediaType == "application/json":
		return handleJSONRequest(r, maxBytes)
	default:
		return handleRawRequest(r, maxBytes)
	}
}

func handleJSONRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	// base64 inflates by 4/3.
	body := io.LimitReader(r.Body, maxBytes*4/3+1024)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, errors.Wrap(err, "decode JSON body")
	}
	if req.Image == "" {
		return nil, errNoUpload
	}

	// Accept data URLs as sent by browsers.
	payload := req.Image
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64 image")
	}
	return data, nil
}

func handleMultipartRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, errors.Wrap(err, "parse multipart form")
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errNoUpload
		}
		return nil, errors.Wrap(err, "read form file")
	}
	defer file.Close()

	return readLimited(file, maxBytes)
}

func handleRawRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	return readLimited(r.Body, maxBytes)
}

func readLimited(src io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, errors.Errorf("upload exceeds %d bytes", maxBytes)
	}
	return data, nil
}

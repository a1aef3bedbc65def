package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavel-fokin/paste-stash/internal/paste"
	"github.com/pavel-fokin/paste-stash/internal/subscription"
)

func rawPaste(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		delivery, err := pasteService.Raw(r.Context(), id)
		if err != nil {
			slog.Info("Raw read refused", "error", err, "paste_id", id)
			writeError(w, err)
			return
		}

		writeDelivery(w, delivery)
	}
}

func subPaste(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		delivery, err := pasteService.Sub(r.Context(), id)
		if err != nil {
			slog.Info("Subscription read refused", "error", err, "paste_id", id)
			writeError(w, err)
			return
		}

		writeDelivery(w, delivery)
	}
}

func getPaste(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		record, err := pasteService.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

func uploadPaste(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			req *paste.UploadRequest
			err error
		)

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			req, err = parseMultipartUpload(r)
		} else {
			req, err = parseJSONUpload(r)
		}
		if err != nil {
			slog.Info("Upload rejected", "error", err)
			writeError(w, err)
			return
		}

		result, err := pasteService.Upload(r.Context(), req)
		if err != nil {
			slog.Info("Upload failed", "error", err, "filename", req.Filename, "type", req.Kind)
			writeError(w, err)
			return
		}

		slog.Info("Paste created", "paste_id", result.ID, "type", req.Kind)
		writeJSON(w, http.StatusCreated, result)
	}
}

func listPastes(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := paste.ListFilter{
			Kind:  paste.Kind(r.URL.Query().Get("kind")),
			Query: r.URL.Query().Get("q"),
		}

		records, err := pasteService.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, records)
	}
}

func deletePaste(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("Deleting paste", "paste_id", id)

		if err := pasteService.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deletePastes(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, fmt.Errorf("%w: malformed JSON body", paste.ErrInvalidUpload))
			return
		}

		result := pasteService.DeleteMany(r.Context(), body.IDs)
		slog.Info("Batch delete finished", "deleted", result.Deleted, "errors", result.Errors)

		writeJSON(w, http.StatusOK, result)
	}
}

func cleanup(pasteService *paste.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := pasteService.Cleanup(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		slog.Info("Cleanup finished", "deleted", result.Deleted, "errors", result.Errors)
		writeJSON(w, http.StatusOK, result)
	}
}

// uploadBody is the JSON upload form used for text and subscriptions
type uploadBody struct {
	Type             string             `json:"type"`
	Content          string             `json:"content"`
	URL              string             `json:"url"`
	Filename         string             `json:"filename"`
	ContentType      string             `json:"contentType"`
	BurnAfterRead    bool               `json:"burnAfterRead"`
	ExpiresIn        flexInt            `json:"expiresIn"`
	MaxDownloads     flexInt            `json:"maxDownloads"`
	CustomSlug       string             `json:"customSlug"`
	SubscriptionInfo *subscription.Info `json:"subscriptionInfo"`
}

func parseJSONUpload(r *http.Request) (*paste.UploadRequest, error) {
	var body uploadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if isTooLarge(err) {
			return nil, paste.ErrTooLarge
		}
		return nil, fmt.Errorf("%w: malformed JSON body", paste.ErrInvalidUpload)
	}

	kind := paste.Kind(body.Type)
	if kind == "" {
		kind = paste.KindText
	}
	content := body.Content
	if content == "" {
		content = body.URL
	}

	return &paste.UploadRequest{
		Kind:             kind,
		Filename:         body.Filename,
		ContentType:      body.ContentType,
		Content:          []byte(content),
		BurnAfterRead:    body.BurnAfterRead,
		ExpiresIn:        int(body.ExpiresIn),
		MaxDownloads:     int(body.MaxDownloads),
		CustomSlug:       strings.TrimSpace(body.CustomSlug),
		SubscriptionInfo: body.SubscriptionInfo,
	}, nil
}

func parseMultipartUpload(r *http.Request) (*paste.UploadRequest, error) {
	// Parse multipart form
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			return nil, paste.ErrTooLarge
		}
		return nil, fmt.Errorf("%w: failed to parse multipart form", paste.ErrInvalidUpload)
	}

	// Get file from form
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: no file provided", paste.ErrInvalidUpload)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file", paste.ErrInvalidUpload)
	}

	req := &paste.UploadRequest{
		Kind:        paste.KindFile,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		CustomSlug:  strings.TrimSpace(r.FormValue("customSlug")),
	}
	if kind := r.FormValue("type"); kind != "" {
		req.Kind = paste.Kind(kind)
	}

	if req.BurnAfterRead, err = formBool(r, "burnAfterRead"); err != nil {
		return nil, err
	}
	if req.ExpiresIn, err = formInt(r, "expiresIn"); err != nil {
		return nil, err
	}
	if req.MaxDownloads, err = formInt(r, "maxDownloads"); err != nil {
		return nil, err
	}

	if raw := r.FormValue("subscriptionInfo"); raw != "" {
		var info subscription.Info
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("%w: malformed subscriptionInfo", paste.ErrInvalidUpload)
		}
		req.SubscriptionInfo = &info
	}

	return req, nil
}

func formBool(r *http.Request, name string) (bool, error) {
	v := r.FormValue(name)
	if v == "" {
		return false, nil
	}
	if v == "on" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", paste.ErrInvalidUpload, name)
	}
	return b, nil
}

func formInt(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", paste.ErrInvalidUpload, name)
	}
	return n, nil
}

// flexInt accepts both JSON numbers and numeric strings, empty means zero
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*f = flexInt(n)
	return nil
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func writeDelivery(w http.ResponseWriter, d *paste.Delivery) {
	for name, value := range d.Header {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Body)))
	// Every read changes the record, never serve one from a cache
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(d.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps service errors to status codes
func writeError(w http.ResponseWriter, err error) {
	var upstreamErr *subscription.UpstreamError
	switch {
	case errors.Is(err, paste.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case paste.IsGone(err):
		writeJSON(w, http.StatusGone, errorBody(err.Error()))
	case paste.IsBadRequest(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &upstreamErr):
		writeJSON(w, http.StatusBadGateway, errorBody("failed to fetch upstream subscription"))
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

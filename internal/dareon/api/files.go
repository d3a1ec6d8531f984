package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dareon-io/dareon2/internal/dareon/audit"
	"github.com/dareon-io/dareon2/internal/dareon/auth"
	"github.com/dareon-io/dareon2/internal/dareon/files"
	"github.com/dareon-io/dareon2/internal/dareon/httpjson"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// FileService is what the file routes need. *files.Service implements it.
type FileService interface {
	List(ctx context.Context, userID string) ([]files.Entry, error)
	Sort(ctx context.Context, userID string, key files.SortKey) ([]files.Entry, error)
	Search(ctx context.Context, userID, query string) ([]files.Entry, error)
	Stats(ctx context.Context, userID string) (files.Stats, error)
	Save(ctx context.Context, userID string, up files.Upload) (files.Entry, error)
}

// maxUploadRequest bounds a whole multipart request: every file at its limit
// plus room for part headers.
const maxUploadRequest = files.MaxFilesPerUpload*files.MaxUploadSize + 1<<20

// FilesHandler serves /api/files.
type FilesHandler struct {
	files    FileService
	recorder audit.Recorder
}

// NewFilesHandler returns the file routes.
func NewFilesHandler(fs FileService, recorder audit.Recorder) *FilesHandler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	return &FilesHandler{files: fs, recorder: recorder}
}

// Register implements Registrar.
func (h *FilesHandler) Register(mux *http.ServeMux, guard *auth.Guard) {
	mux.Handle("GET /api/files", guard.Protect(http.HandlerFunc(h.handleList)))
	mux.Handle("POST /api/files/sort", guard.Protect(http.HandlerFunc(h.handleSort)))
	mux.Handle("GET /api/files/search", guard.Protect(http.HandlerFunc(h.handleSearch)))
	mux.Handle("GET /api/files/stats", guard.Protect(http.HandlerFunc(h.handleStats)))
	mux.Handle("POST /api/files/upload", chain(http.HandlerFunc(h.handleUpload),
		guard.Protect, guard.RequireSubscription(store.TierBasic)))
}

func (h *FilesHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	observability.WithTrace(r.Context()).Error("files: "+op+" failed", "user_id", mustUser(r), "err", err)
	httpjson.Error(w, http.StatusInternalServerError, "Server Error")
}

func (h *FilesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.files.List(r.Context(), mustUser(r))
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Success: true, Count: len(list), Data: nonEmpty(list)})
}

func (h *FilesHandler) handleSort(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SortBy string `json:"sortBy"`
	}
	if err := httpjson.Decode(w, r, 0, &body); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	key, err := files.ParseSortKey(body.SortBy)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid sort parameter")
		return
	}
	list, err := h.files.Sort(r.Context(), mustUser(r), key)
	if err != nil {
		h.fail(w, r, "sort", err)
		return
	}
	httpjson.OK(w, http.StatusOK, nonEmpty(list))
}

func (h *FilesHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		httpjson.Error(w, http.StatusBadRequest, "Please provide a search query")
		return
	}
	list, err := h.files.Search(r.Context(), mustUser(r), query)
	if err != nil {
		h.fail(w, r, "search", err)
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Success: true, Count: len(list), Data: nonEmpty(list)})
}

func (h *FilesHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.files.Stats(r.Context(), mustUser(r))
	if err != nil {
		h.fail(w, r, "stats", err)
		return
	}
	httpjson.OK(w, http.StatusOK, st)
}

// handleUpload streams each "files" part straight to storage.
func (h *FilesHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mustUser(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequest)

	mr, err := r.MultipartReader()
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Please upload files")
		return
	}

	saved := []files.Entry{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, "Invalid multipart body")
			return
		}
		if part.FormName() != "files" || part.FileName() == "" {
			part.Close()
			continue
		}
		if len(saved) == files.MaxFilesPerUpload {
			part.Close()
			httpjson.Error(w, http.StatusBadRequest, "Too many files. Maximum is 10 files per upload.")
			return
		}

		entry, err := h.files.Save(ctx, userID, files.Upload{
			OriginalName: part.FileName(),
			MimeType:     part.Header.Get("Content-Type"),
			Body:         part,
		})
		part.Close()
		switch {
		case errors.Is(err, files.ErrUnsupportedType):
			httpjson.Error(w, http.StatusBadRequest, "Invalid file type. Please upload only allowed file types.")
			return
		case errors.Is(err, files.ErrFileTooLarge):
			httpjson.Error(w, http.StatusBadRequest, "File size too large. Maximum size is 100MB.")
			return
		case err != nil:
			h.fail(w, r, "upload", err)
			return
		}

		h.recorder.Record(ctx, audit.Event{
			Kind:   audit.KindFileOperation,
			UserID: userID,
			Action: "upload",
			Details: map[string]any{
				"file":     entry.Name,
				"original": part.FileName(),
				"size":     entry.Size,
			},
		})
		saved = append(saved, entry)
	}

	if len(saved) == 0 {
		httpjson.Error(w, http.StatusBadRequest, "Please upload files")
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Success: true, Count: len(saved), Data: saved})
}

func nonEmpty(list []files.Entry) []files.Entry {
	if list == nil {
		return []files.Entry{}
	}
	return list
}

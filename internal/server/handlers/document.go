package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/showroom/internal/coordinator"
	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/server/responses"
)

// Admin credential headers checked on write endpoints.
const (
	HeaderAdminName = "X-Admin-Name"
	HeaderAdminPin  = "X-Admin-Pin"
)

const maxDocumentBytes = 32 << 20

// DocumentService is the part of the sync coordinator used by the API.
type DocumentService interface {
	Document() *model.Document
	Snapshot() coordinator.Snapshot
	Status() events.SyncStatus
	Save(ctx context.Context, doc *model.Document) error
	ResetToDefaults(ctx context.Context) error
	Fetch(ctx context.Context, background bool) (*model.Document, error)
}

// DocumentHandlers serves the shared document.
type DocumentHandlers struct {
	docs         DocumentService
	errorAdapter *errors.HTTPErrorAdapter
}

// NewDocumentHandlers creates document handlers.
func NewDocumentHandlers(docs DocumentService) *DocumentHandlers {
	return &DocumentHandlers{
		docs:         docs,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleGet returns the current in-memory document.
func (h *DocumentHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	doc := h.docs.Document()
	if doc == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.RuntimeError("document not loaded yet").Retryable().Build())
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, doc); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryInternal, "failed to write document response").Build())
	}
}

// HandleSave replaces the document with the request body.
func (h *DocumentHandlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryValidation, "failed to read request body").Build())
		return
	}
	doc, err := model.Decode(raw)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryValidation, "invalid store document").Build())
		return
	}

	// The optimistic local state is kept even when the remote push fails.
	if err := h.docs.Save(r.Context(), doc); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.writeSaved(w, r)
}

// HandleReset saves the built-in default document.
func (h *DocumentHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.docs.ResetToDefaults(r.Context()); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.writeSaved(w, r)
}

// HandleSync runs a foreground fetch and reports the outcome.
func (h *DocumentHandlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Fetch(r.Context(), false)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	resp := responses.SyncResponse{Status: "ok", Sync: h.docs.Snapshot()}
	if doc != nil {
		resp.Catalogues = len(doc.Catalogues)
		resp.Brands = len(doc.Brands)
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed writing sync response", logfields.Error(err))
	}
}

func (h *DocumentHandlers) writeSaved(w http.ResponseWriter, r *http.Request) {
	snap := h.docs.Snapshot()
	resp := responses.SaveResponse{Status: "saved", Revision: snap.Revision, Sync: h.docs.Status()}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		slog.Error("failed writing save response", logfields.Error(err))
	}
}

// authorize checks the admin headers against the current document. A
// document without admins accepts every write.
func (h *DocumentHandlers) authorize(r *http.Request) error {
	current := h.docs.Document()
	if current == nil || len(current.Admins) == 0 {
		return nil
	}
	name := r.Header.Get(HeaderAdminName)
	pin := r.Header.Get(HeaderAdminPin)
	if name == "" || pin == "" {
		return errors.AuthError("admin credentials required").Build()
	}
	admin, ok := current.VerifyAdmin(name, pin)
	if !ok {
		return errors.AuthError("invalid admin credentials").WithContext("name", name).Build()
	}
	slog.InfoContext(r.Context(), "Admin write authorized", slog.String("admin", admin.Name), logfields.Path(r.URL.Path))
	return nil
}

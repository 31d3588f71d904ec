package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkgindex/backend-go/internal/db"
	"github.com/pkgindex/backend-go/internal/policy"
	"github.com/pkgindex/backend-go/pkg/archive"
)

// VerdictStore persists and retrieves validation outcomes.
type VerdictStore interface {
	RecordVerdict(ctx context.Context, filename string, size int64, ok bool, reason string) (db.Verdict, error)
	GetVerdict(ctx context.Context, id uuid.UUID) (db.Verdict, error)
}

// AdmissionGate decides whether an upload may be validated at all.
type AdmissionGate interface {
	Admit(ctx context.Context, up policy.Upload) error
}

type uploadHandler struct {
	store  VerdictStore
	gate   AdmissionGate
	tracer trace.Tracer
}

func LoadUploadRoutes(store VerdictStore, gate AdmissionGate) chi.Router {
	h := uploadHandler{
		store:  store,
		gate:   gate,
		tracer: otel.Tracer("github.com/pkgindex/backend-go/api"),
	}
	r := chi.NewRouter()
	r.Route("/", func(r chi.Router) {
		r.Post("/uploads", h.createUpload)
		r.Get("/uploads/{id}", h.getUpload)
	})
	return r
}

func (h uploadHandler) createUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "upload.validate")
	defer span.End()

	file, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("could not read multipart upload", err)
		http.Error(w, "could not read multipart upload", http.StatusBadRequest)
		return
	}
	defer file.Close()
	span.SetAttributes(
		attribute.String("upload.filename", header.Filename),
		attribute.Int64("upload.size", header.Size),
	)

	if err := h.gate.Admit(ctx, policy.Upload{Filename: header.Filename, Size: header.Size}); err != nil {
		if errors.Is(err, policy.ErrDenied) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": err.Error()})
			return
		}
		slog.Error("could not evaluate upload policy", err)
		http.Error(w, "could not evaluate upload policy", http.StatusInternalServerError)
		return
	}

	// The validator needs a seekable file, so the body is spooled to disk.
	tmp, err := os.CreateTemp("", "upload-*.zip")
	if err != nil {
		slog.Error("could not spool upload", err)
		http.Error(w, "could not spool upload", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		slog.Error("could not spool upload", err)
		http.Error(w, "could not spool upload", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	ok, reason := archive.Check(tmp.Name())
	span.SetAttributes(
		attribute.Bool("verdict.ok", ok),
		attribute.String("verdict.reason", reason),
	)

	verdict, err := h.store.RecordVerdict(ctx, header.Filename, header.Size, ok, reason)
	if err != nil {
		slog.Error("could not record verdict", err)
		http.Error(w, "could not record verdict", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if !ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, verdict)
}

func (h uploadHandler) getUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "upload.get")
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "malformed verdict id", http.StatusBadRequest)
		return
	}
	verdict, err := h.store.GetVerdict(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "verdict not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("could not retrieve verdict", err)
		http.Error(w, "could not retrieve verdict", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

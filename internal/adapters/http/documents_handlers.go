package httpadapter

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/raglite/internal/core/domain"
)

// multipart framing allowance on top of the file size limit
const multipartOverheadBytes = 1 << 20

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverheadBytes)
	}

	part, err := filePart(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer part.Close()

	res, err := rt.deps.Ingest.Upload(r.Context(), part.FileName(), part)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	switch res.Outcome {
	case domain.IngestDuplicate:
		writeJSON(w, http.StatusOK, uploadResponse{Message: "Document already exists", Document: res.Document})
	case domain.IngestFailed:
		msg := "document processing failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, uploadResponse{
			Message:  "Document uploaded but processing failed",
			Error:    msg,
			Document: res.Document,
		})
	default:
		summary := res.Summary
		writeJSON(w, http.StatusOK, uploadResponse{
			Message:    "Document uploaded and processed successfully",
			Document:   res.Document,
			Processing: &summary,
		})
	}
}

// filePart streams the first part named "file" without buffering the
// upload in memory.
func filePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errors.New("file part not found")
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	docs, err := rt.deps.Documents.List(r.Context(), opts)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Document]{Items: docs, Limit: opts.Limit, Offset: opts.Offset})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.deps.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Documents.Delete(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) reindexDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	queued, err := rt.deps.Documents.RequestReindex(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if queued {
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "Reindex queued", "document_id": id})
		return
	}
	doc, err := rt.deps.Documents.Get(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Message: "Document reindexed", Document: doc})
}

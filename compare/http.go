package compare

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/docdiff/faults"
	"github.com/hazyhaar/docdiff/imagecmp"
	"github.com/hazyhaar/docdiff/kit"
	"github.com/hazyhaar/docdiff/scratch"
	"github.com/hazyhaar/docdiff/shield"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// NewHandler returns the HTTP surface of c:
//
//	POST   /compare                 multipart fields "original", "modified", optional "id"
//	GET    /compare/{id}/{file}     annotated.pdf or diff_mask.png
//	DELETE /compare/{id}            release the workspace
//	GET    /healthz
//
// Without an "id" field the comparison takes the request id minted by the
// shield stack, which is also echoed in the X-Request-ID header.
func NewHandler(c *Comparator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Two documents plus multipart framing.
	for _, mw := range shield.DefaultAPIStack(2*c.cfg.MaxUploadBytes + 1<<20) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pool": c.Stats()})
	})
	r.Post("/compare", c.handleCompare)
	r.Get("/compare/{id}/{file}", c.handleFile)
	r.Delete("/compare/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Release(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (c *Comparator) handleCompare(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, uploadStatus(err), fmt.Errorf("invalid multipart body: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	original, err := c.formUpload(r, roleOriginal)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	modified, err := c.formUpload(r, roleModified)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		id = kit.GetRequestID(r.Context())
	}
	shield.GetLogger(r.Context()).Debug("compare: uploads read",
		"original_bytes", len(original.Data), "modified_bytes", len(modified.Data))
	res := c.Compare(r.Context(), Request{ID: id, Original: original, Modified: modified})

	status := http.StatusOK
	if e, ok := res.(*ErrorResult); ok {
		status = causeStatus(e.Cause)
	}
	writeJSON(w, status, res)
}

func (c *Comparator) formUpload(r *http.Request, field string) (Upload, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return Upload{}, fmt.Errorf("missing file field %q: %w", field, err)
	}
	defer f.Close()
	data, err := scratch.LimitedReadAll(f, c.cfg.MaxUploadBytes)
	if err != nil {
		return Upload{}, fmt.Errorf("%s: %w", field, err)
	}
	return Upload{Name: hdr.Filename, Data: data}, nil
}

func (c *Comparator) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	path, err := c.File(chi.URLParam(r, "id"), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s not found", name))
		return
	}
	if name == imagecmp.MaskFile {
		w.Header().Set("Content-Type", "image/png")
	} else {
		w.Header().Set("Content-Type", "application/pdf")
	}
	http.ServeFile(w, r, path)
}

func uploadStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.Is(err, scratch.ErrTooLarge) || errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func causeStatus(c faults.Cause) int {
	switch c {
	case faults.InvalidInput:
		return http.StatusBadRequest
	case faults.Extraction, faults.Comparison:
		return http.StatusUnprocessableEntity
	case faults.Canceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

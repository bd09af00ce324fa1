package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/avelar/taskhub/internal/activity"
	"github.com/avelar/taskhub/pkg/models"
)

// RESTServer exposes the authoritative store over HTTP. A zero-row update
// maps to 409 so clients can reconstruct ErrConflict on their side.
type RESTServer struct {
	db       *DB
	recorder activity.Recorder
	logger   *slog.Logger
}

func NewRESTServer(db *DB, recorder activity.Recorder, logger *slog.Logger) *RESTServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTServer{db: db, recorder: recorder, logger: logger}
}

func (s *RESTServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/tasks", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.handleInsert).Methods(http.MethodPost)
	r.HandleFunc("/tasks/merge", s.handleMerge).Methods(http.MethodPost)
	r.HandleFunc("/tasks/batch", s.handleUpdateMany).Methods(http.MethodPost)
	r.HandleFunc("/tasks/batch/delete", s.handleDeleteMany).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", s.handleUpdate).Methods(http.MethodPatch)
	r.HandleFunc("/tasks/{id}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/activity", s.handleRecordActivity).Methods(http.MethodPost)
	r.HandleFunc("/activity", s.handleListActivity).Methods(http.MethodGet)
	return r
}

type recordingWriter struct {
	inner      http.ResponseWriter
	statusCode int
}

func (r *recordingWriter) Header() http.Header { return r.inner.Header() }

func (r *recordingWriter) Write(b []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.inner.Write(b)
}

func (r *recordingWriter) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.inner.WriteHeader(statusCode)
}

func (s *RESTServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rw := &recordingWriter{inner: w}
		next.ServeHTTP(rw, req)
		s.logger.Info("handled", "method", req.Method, "url", req.URL.String(), "status", rw.statusCode)
	})
}

func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to write response", "err", err)
		}
	}
}

func (s *RESTServer) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrConflict) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *RESTServer) handleList(w http.ResponseWriter, req *http.Request) {
	tasks, err := s.db.List(req.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	s.respondJSON(w, http.StatusOK, tasks)
}

func (s *RESTServer) handleInsert(w http.ResponseWriter, req *http.Request) {
	var t models.Task
	if err := json.NewDecoder(req.Body).Decode(&t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.db.Insert(req.Context(), &t); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &t)
}

func (s *RESTServer) handleUpdate(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	var fields TaskFields
	if err := json.NewDecoder(req.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := s.db.Update(req.Context(), id, fields)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}

type batchRequest struct {
	IDs    []string   `json:"ids"`
	Fields TaskFields `json:"fields"`
}

func (s *RESTServer) handleUpdateMany(w http.ResponseWriter, req *http.Request) {
	var batch batchRequest
	if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.db.UpdateMany(req.Context(), batch.IDs, batch.Fields); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"updated": len(batch.IDs)})
}

func (s *RESTServer) handleDelete(w http.ResponseWriter, req *http.Request) {
	if err := s.db.Delete(req.Context(), mux.Vars(req)["id"]); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RESTServer) handleDeleteMany(w http.ResponseWriter, req *http.Request) {
	var batch batchRequest
	if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.db.DeleteMany(req.Context(), batch.IDs); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mergeRequest struct {
	PrimaryID string     `json:"primary_id"`
	Fields    TaskFields `json:"fields"`
	RemoveIDs []string   `json:"remove_ids"`
}

func (s *RESTServer) handleMerge(w http.ResponseWriter, req *http.Request) {
	var merge mergeRequest
	if err := json.NewDecoder(req.Body).Decode(&merge); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := s.db.Merge(req.Context(), merge.PrimaryID, merge.Fields, merge.RemoveIDs)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}

func (s *RESTServer) handleRecordActivity(w http.ResponseWriter, req *http.Request) {
	var e models.ActivityEntry
	if err := json.NewDecoder(req.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.recorder.Record(req.Context(), &e); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &e)
}

func (s *RESTServer) handleListActivity(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := s.recorder.Recent(req.Context(), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.ActivityEntry{}
	}
	s.respondJSON(w, http.StatusOK, entries)
}

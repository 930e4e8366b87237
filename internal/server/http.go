package server

import (
	"encoding/json"
	"net/http"
)

// OperationHeader names the operation a compilation serves. Filters see it
// as Operation.Name; it defaults to DefaultOperation.
const OperationHeader = "X-Pipefilter-Operation"

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/resources", s.handleListResources)
	mux.HandleFunc("GET /v1/resources/{name}/pipeline", s.handleCompile)
	mux.HandleFunc("GET /v1/resources/{name}/parameters", s.handleDescribe)
	mux.HandleFunc("GET /v1/resources/{name}/schema", s.handleSchema)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health. It reports "starting" until a
// compiler is installed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.current(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListResources handles GET /v1/resources.
func (s *Server) handleListResources(w http.ResponseWriter, _ *http.Request) {
	c, err := s.current()
	if err != nil {
		s.writeCompileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"resources": c.Resources()})
}

// handleCompile handles GET /v1/resources/{name}/pipeline. The request's
// query string is the filter input.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	resp, err := s.compile(r.Context(), r.PathValue("name"), r.Header.Get(OperationHeader), r.URL.RawQuery)
	if err != nil {
		s.writeCompileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDescribe handles GET /v1/resources/{name}/parameters.
func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	params, err := s.describe(r.PathValue("name"))
	if err != nil {
		s.writeCompileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parameters": params})
}

// handleSchema handles GET /v1/resources/{name}/schema.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	c, err := s.current()
	if err != nil {
		s.writeCompileError(w, err)
		return
	}
	schema, err := c.Schema(r.PathValue("name"))
	if err != nil {
		s.writeCompileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) writeCompileError(w http.ResponseWriter, err error) {
	switch classify(err) {
	case classInput:
		writeError(w, http.StatusBadRequest, err.Error())
	case classNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case classUnavailable:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case classCanceled:
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error("compile failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/oakgate/oakgate/internal/graph"
)

// maxPipelineBody bounds uploaded graph documents.
const maxPipelineBody = 1 << 20

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	if s.opts.BuildPipeline == nil {
		writeUnavailable(w, "no pipeline configured")
		return
	}
	p, err := s.opts.BuildPipeline(s.config())
	if err != nil {
		writeInternal(w, err.Error())
		return
	}
	data, err := p.Serialize()
	if err != nil {
		writeInternal(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type validateResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
	Nodes    int      `json:"nodes,omitempty"`
	Streams  []string `json:"streams,omitempty"`
}

// handleValidatePipeline checks a posted graph document without touching
// the device. Model blob paths are not stat'ed; the document may come from
// a machine that does not carry the blobs.
func (s *Server) handleValidatePipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPipelineBody))
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}

	p, err := graph.Parse(body)
	if err != nil {
		writeJSON(w, http.StatusOK, validateResponse{
			Valid:    false,
			Problems: []string{err.Error()},
		})
		return
	}

	if err := p.ValidateWith(graph.ValidateOptions{SkipBlobCheck: true}); err != nil {
		resp := validateResponse{Valid: false}
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			resp.Problems = verr.Problems
		} else {
			resp.Problems = []string{err.Error()}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	streams := p.Streams()
	names := make([]string, 0, len(streams))
	for _, st := range streams {
		names = append(names, st.Name)
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:   true,
		Nodes:   p.NodeCount(),
		Streams: names,
	})
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pump == nil {
		writeUnavailable(w, "pump not running")
		return
	}
	res, ok := s.opts.Pump.Detections().Latest()
	if !ok {
		writeNotFound(w, "no detections yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}

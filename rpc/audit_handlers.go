package rpc

import (
	"net/http"
	"time"
)

type listEventsParams struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit"`
}

type auditEntryJSON struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt string            `json:"recordedAt"`
}

func (s *Server) handleAuditListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "audit archive not enabled", nil)
		return
	}
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	entries, err := s.archive.List(params.After, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	out := make([]auditEntryJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditEntryJSON{
			ID:         entry.ID,
			Sequence:   entry.Sequence,
			Type:       entry.Type,
			Attributes: entry.Attributes,
			RecordedAt: entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeResult(w, req.ID, out)
}

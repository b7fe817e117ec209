package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/internal/tool"
	"github.com/klubi/scout/pkg/rpc"
)

// maxBodyBytes caps the size of an accepted request body.
const maxBodyBytes = 1 << 20

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a plain JSON error for the non-RPC endpoints.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// RPC
// ---------------------------------------------------------------------------

// handleRPC answers every envelope with HTTP 200; failures travel in the
// envelope's error field.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusOK, rpc.ErrorResponse(nil, rpc.CodeParseError, "Parse error: "+err.Error()))
		return
	}

	var resp *rpc.Response
	req, rpcErr := rpc.DecodeRequest(body)
	if rpcErr != nil {
		resp = rpc.ErrorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	} else {
		resp = s.dispatch(r.Context(), req)
	}

	s.record(req, resp, time.Since(start))
	s.writeJSON(w, http.StatusOK, resp)
}

// dispatch runs one decoded request. The method is resolved before the
// input is decoded, so an unknown method always answers -32601. The request
// id is echoed on every path, including internal errors.
func (s *Server) dispatch(ctx context.Context, req *rpc.Request) *rpc.Response {
	t, err := s.registry.Lookup(req.Method)
	if err != nil {
		return rpc.ErrorResponse(req.ID, rpc.CodeMethodNotFound, "Unknown method: "+req.Method)
	}

	if err := req.DecodeInput(); err != nil {
		return rpc.ErrorResponse(req.ID, rpc.CodeInternalError, err.Error())
	}

	result, err := s.invoke(ctx, t, req.Params.Input)
	if err != nil {
		return rpc.ErrorResponse(req.ID, rpc.CodeInternalError, err.Error())
	}
	return rpc.ResultResponse(req.ID, result)
}

// invoke runs the tool and turns a panic into an ordinary error so a
// misbehaving tool cannot take the server down.
func (s *Server) invoke(ctx context.Context, t tool.Tool, input rpc.Input) (result rpc.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("tool panicked",
				zap.String("tool", t.Name),
				zap.Any("panic", p),
			)
			err = fmt.Errorf("tool %s panicked: %v", t.Name, p)
		}
	}()
	return tool.Invoke(ctx, t, input)
}

// record logs the call and appends it to the call log.
func (s *Server) record(req *rpc.Request, resp *rpc.Response, elapsed time.Duration) {
	rec := rpc.CallRecord{
		ID:         uuid.New().String(),
		RequestID:  rpc.IDString(req.ID),
		Method:     req.Method,
		Input:      req.InputString(),
		OK:         resp.Error == nil,
		DurationMs: elapsed.Milliseconds(),
		At:         time.Now(),
	}

	fields := []zap.Field{
		zap.String("method", rec.Method),
		zap.String("requestId", rec.RequestID),
		zap.String("input", rec.Input),
		zap.Duration("elapsed", elapsed),
	}
	if resp.Error != nil {
		rec.ErrorCode = resp.Error.Code
		rec.ErrorMessage = resp.Error.Message
		s.logger.Warn("rpc call failed", append(fields,
			zap.Int64("code", resp.Error.Code),
			zap.String("error", resp.Error.Message),
		)...)
	} else {
		s.logger.Info("rpc call", fields...)
	}

	if s.records == nil {
		return
	}
	if err := s.records.Create(store.RecordKey(store.KindCall, rec.ID), &rec); err != nil {
		s.logger.Warn("failed to record call", zap.String("method", rec.Method), zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	calls := make([]*rpc.CallRecord, 0)
	if s.records != nil {
		items, err := s.records.List(store.KindPrefix(store.KindCall), func() interface{} { return &rpc.CallRecord{} })
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, item := range items {
			calls = append(calls, item.(*rpc.CallRecord))
		}
	}

	sort.Slice(calls, func(i, j int) bool { return calls[i].At.After(calls[j].At) })
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}

	s.writeJSON(w, http.StatusOK, calls)
}

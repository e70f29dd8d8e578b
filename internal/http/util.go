package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"dugtong/internal/repository"
	"dugtong/internal/service"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// readBodyJSON decodes a bare object. Bodies wrapped as {"data": {...}} (optionally with
// "success") are unwrapped first.
func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	var wrapper map[string]json.RawMessage
	if json.Unmarshal(body, &wrapper) == nil {
		if data, ok := wrapper["data"]; ok && isWrapper(wrapper) {
			body = data
		}
	}
	return json.Unmarshal(body, out)
}

func isWrapper(m map[string]json.RawMessage) bool {
	for k := range m {
		if k != "data" && k != "success" {
			return false
		}
	}
	return true
}

// pageParams reads page/page_size, or limit/offset when limit is given.
// The offset must fall on a page boundary.
func pageParams(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	if limit := parseInt(q.Get("limit"), 0); limit > 0 {
		offset := parseInt(q.Get("offset"), 0)
		if offset < 0 || offset%limit != 0 {
			return 0, 0, &service.ValidationError{Fields: map[string]string{"offset": "multiple of limit"}}
		}
		return offset / limit, limit, nil
	}
	return parseInt(q.Get("page"), 0), parseInt(q.Get("page_size"), 0), nil
}

// writeError maps service and repository errors onto statuses and the Fail envelope.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, FailWith(err.Error(), ve.Fields))
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	case errors.Is(err, repository.ErrRegistrationReviewed):
		writeJSON(w, http.StatusConflict, Fail(repository.ErrRegistrationReviewed.Error()))
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, Fail(service.ErrInvalidCredentials.Error()))
	case errors.Is(err, repository.ErrUnsupported):
		writeJSON(w, http.StatusNotImplemented, Fail(repository.ErrUnsupported.Error()))
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, Fail("forbidden"))
	default:
		logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Fail(message))
}

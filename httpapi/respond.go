package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageBody struct {
	Message string `json:"message"`
}

// WriteError maps err to a status code and writes {"code","message"}.
// Internal failures are logged with their cause and answered with a generic
// message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := storeauth.KindOf(err)
	logInternal(r, err)
	writeJSON(w, kind.HTTPStatus(), errorBody{Code: kind.String(), Message: storeauth.PublicMessage(err)})
}

// logInternal logs err when it maps to a 5xx status.
func logInternal(r *http.Request, err error) {
	kind := storeauth.KindOf(err)
	if kind.HTTPStatus() < http.StatusInternalServerError {
		return
	}
	logger.From(r.Context()).Error("request failed",
		logger.Method(r.Method),
		logger.Path(r.URL.Path),
		zap.String("kind", kind.String()),
		logger.Err(err),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

var errBadJSON = &storeauth.Error{Kind: storeauth.KindValidation, Message: "Invalid JSON body"}

// readJSON decodes a body of at most 1MB into v. Unknown fields are ignored.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if ct != "" && !strings.Contains(ct, "application/json") {
		WriteError(w, r, errBadJSON)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, r, errBadJSON)
		return false
	}
	return true
}

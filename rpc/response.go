package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/referenda"
	"github.com/gaecom/substrate/referenda/store"
)

type (
	ErrorResponse struct {
		Message string `json:"message"`
	}

	responseWriter struct {
		log *slog.Logger
	}
)

func (rw *responseWriter) writeResponse(w http.ResponseWriter, r *http.Request, code int, data any) {
	w.Header().Set(headerContentType, applicationJson)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rw.log.WarnContext(r.Context(), "failed to encode response data as json", logger.Error(err))
	}
}

func (rw *responseWriter) errorResponse(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		rw.log.WarnContext(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path), logger.Error(err))
	}
	rw.writeResponse(w, r, code, ErrorResponse{Message: err.Error()})
}

// writeError maps the error returned by the node to a HTTP status code.
func (rw *responseWriter) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rw.errorResponse(w, r, statusCode(err), err)
}

func (rw *responseWriter) invalidParam(w http.ResponseWriter, r *http.Request, name string, err error) {
	rw.errorResponse(w, r, http.StatusBadRequest, fmt.Errorf("invalid parameter %q: %w", name, err))
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, referenda.ErrUnknownTrack):
		return http.StatusNotFound
	case errors.Is(err, referenda.ErrUnclassifiable),
		errors.Is(err, referenda.ErrInvalidTally):
		return http.StatusBadRequest
	case errors.Is(err, referenda.ErrBadOrigin):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, referenda.ErrNotOngoing),
		errors.Is(err, referenda.ErrAlreadyDeposited),
		errors.Is(err, referenda.ErrQueueFull),
		errors.Is(err, referenda.ErrStillOngoing),
		errors.Is(err, referenda.ErrDepositRequired):
		return http.StatusConflict
	case errors.Is(err, referenda.ErrLedgerFailure),
		errors.Is(err, referenda.ErrSchedulerFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathUint(r *http.Request, name string, bitSize int) (uint64, error) {
	s, ok := mux.Vars(r)[name]
	if !ok {
		return 0, fmt.Errorf("missing %q variable in the URL", name)
	}
	return strconv.ParseUint(s, 10, bitSize)
}

/*
queryUint returns value of the query parameter, "def" when the parameter is
not present.
*/
func queryUint(qp url.Values, name string, def uint64, bitSize int) (uint64, error) {
	s := qp.Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, bitSize)
}

// setLinkHeader points the client to the next page by replacing the
// "offset" query parameter of the current request.
func setLinkHeader(u *url.URL, w http.ResponseWriter, next string) {
	if next == "" {
		w.Header().Del(headerLink)
		return
	}
	link := *u
	qp := link.Query()
	qp.Set("offset", next)
	link.RawQuery = qp.Encode()
	w.Header().Set(headerLink, fmt.Sprintf(`<%s>; rel="next"`, link.String()))
}

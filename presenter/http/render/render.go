package render

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/logging"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	blob, err := marshal(r, res)
	if err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Error("failed to marshal JSON result")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(blob)
}

func marshal(r *http.Request, res interface{}) ([]byte, error) {
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}

// StatusCode maps an error class to the http status reported to the client.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, entity.ErrPrecondition):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrConfiguration), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	logger := logging.LoggerFromContext(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		logger.Error("request handling failed")
	} else {
		logger.Warn("request rejected")
	}
	JSON(w, r, status, ErrorResponse{Error: err.Error()})
}

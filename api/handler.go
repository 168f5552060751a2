package api

import (
	"encoding/json"
	"errors"
	"evsim/chargepoint"
	"evsim/internal"
	"evsim/types"
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
)

const defaultLogLimit = 100

// Operator is the set of charge point commands exposed over HTTP.
type Operator interface {
	Start(idTag string) error
	Stop() error
	SetStatus(name string) (types.ChargePointStatus, error)
	SetError(name string) (types.ChargePointErrorCode, error)
	SetCurrent(value string) (float64, error)
	Info() chargepoint.Info
}

type LogReader interface {
	ReadLog(limit int64) ([]internal.FeatureLogMessage, error)
}

type Handler struct {
	operator Operator
	logs     LogReader
	logger   internal.LogHandler
}

type response struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewHandler(operator Operator, logger internal.LogHandler) *Handler {
	return &Handler{
		operator: operator,
		logger:   logger,
	}
}

// SetLogReader enables GET /log.
func (h *Handler) SetLogReader(logs LogReader) {
	h.logs = logs
}

func (h *Handler) Register(router *httprouter.Router) {
	router.GET("/info", h.info)
	router.GET("/log", h.readLog)
	router.POST("/start/:idTag", h.start)
	router.POST("/stop", h.stop)
	router.POST("/status/:status", h.status)
	router.POST("/error/:code", h.errorCode)
	router.POST("/current/:amps", h.current)
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.writeJson(w, http.StatusOK, h.operator.Info())
}

func (h *Handler) readLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if h.logs == nil {
		h.writeJson(w, http.StatusNotFound, response{Error: "log storage is not configured"})
		return
	}
	limit := int64(defaultLogLimit)
	if value := r.URL.Query().Get("limit"); value != "" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			h.writeJson(w, http.StatusBadRequest, response{Error: fmt.Sprintf("invalid limit %q", value)})
			return
		}
		limit = n
	}
	data, err := h.logs.ReadLog(limit)
	if err != nil {
		h.logger.Error("read log", err)
		h.writeJson(w, http.StatusInternalServerError, response{Error: err.Error()})
		return
	}
	if data == nil {
		data = []internal.FeatureLogMessage{}
	}
	h.writeJson(w, http.StatusOK, data)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	idTag := params.ByName("idTag")
	h.reply(w, r, fmt.Sprintf("starting transaction for %s", idTag), h.operator.Start(idTag))
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.reply(w, r, "stopping transaction", h.operator.Stop())
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	status, err := h.operator.SetStatus(params.ByName("status"))
	h.reply(w, r, fmt.Sprintf("status set to %s", status), err)
}

func (h *Handler) errorCode(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	code, err := h.operator.SetError(params.ByName("code"))
	h.reply(w, r, fmt.Sprintf("error code set to %s", code), err)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	amps := params.ByName("amps")
	power, err := h.operator.SetCurrent(amps)
	h.reply(w, r, fmt.Sprintf("current set to %s A; power %.2f W", amps, power), err)
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, result string, err error) {
	if err != nil {
		h.logger.Warn(fmt.Sprintf("api: %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err))
		h.writeJson(w, statusCode(err), response{Error: err.Error()})
		return
	}
	h.writeJson(w, http.StatusOK, response{Result: result})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, chargepoint.ErrInvalidInput), types.IsInvalidEnum(err):
		return http.StatusBadRequest
	case errors.Is(err, chargepoint.ErrRejected):
		return http.StatusConflict
	case errors.Is(err, chargepoint.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJson(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("encoding api response failed", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(data); err != nil {
		h.logger.Error("api: write response", err)
	}
}

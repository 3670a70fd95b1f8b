package station

import (
	"context"
	"encoding/json"
	"errors"
	"evsim/connector"
	"evsim/internal"
	"evsim/internal/config"
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
)

// Operator is the set of intents exposed over http
type Operator interface {
	Connect(ctx context.Context) error
	Disconnect() error
	PlugIn() error
	Unplug() error
	StartTransaction(idTag string) error
	StopTransaction() error
	Fault(errorCode string) error
	ClearFault() error
	ApplySettings(settings Settings) error
	Status() (Status, error)
}

type LogReader interface {
	ReadLog() ([]internal.FeatureLogMessage, error)
}

type Api struct {
	conf       *config.Config
	operator   Operator
	logReader  LogReader
	logger     internal.LogHandler
	httpServer *http.Server
}

type startRequest struct {
	IdTag string `json:"idTag"`
}

type faultRequest struct {
	ErrorCode string `json:"errorCode"`
}

type apiError struct {
	Error string `json:"error"`
}

func NewApi(conf *config.Config, operator Operator, logger internal.LogHandler) *Api {
	api := &Api{
		conf:     conf,
		operator: operator,
		logger:   logger,
	}
	api.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", conf.Api.BindIP, conf.Api.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return api
}

// SetLogReader enables GET /log
func (a *Api) SetLogReader(reader LogReader) {
	a.logReader = reader
}

func (a *Api) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/status", a.handleStatus)
	router.GET("/log", a.handleLog)
	router.POST("/connect", a.handleConnect)
	router.POST("/disconnect", a.intent(a.operator.Disconnect))
	router.POST("/plug", a.intent(a.operator.PlugIn))
	router.POST("/unplug", a.intent(a.operator.Unplug))
	router.POST("/start", a.handleStart)
	router.POST("/stop", a.intent(a.operator.StopTransaction))
	router.POST("/fault", a.handleFault)
	router.POST("/fault/clear", a.intent(a.operator.ClearFault))
	router.PUT("/simulation", a.handleSimulation)
	return gziphandler.GzipHandler(router)
}

func (a *Api) Start() error {
	a.logger.Debug(fmt.Sprintf("starting api on %s", a.httpServer.Addr))
	err := a.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *Api) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *Api) intent(fn func() error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		a.respond(w, r, fn())
	}
}

// respond writes the station status after a successful intent, or the error
func (a *Api) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.logger.Warn(fmt.Sprintf("api: %s %s: %v", r.Method, r.URL.Path, err))
		writeJSON(w, statusCode(err), apiError{Error: err.Error()})
		return
	}
	status, err := a.operator.Status()
	if err != nil {
		writeJSON(w, statusCode(err), apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func statusCode(err error) int {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrDial):
		return http.StatusBadGateway
	case errors.Is(err, connector.ErrInvalidErrorCode),
		errors.Is(err, connector.ErrEmptyIdTag),
		errors.As(err, &validationErrors):
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func (a *Api) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Warn(fmt.Sprintf("api: invalid body from %s: %v", r.RemoteAddr, err))
	writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
}

func (a *Api) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	a.respond(w, r, nil)
}

func (a *Api) handleConnect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	timeout := time.Duration(a.conf.CentralSystem.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	a.respond(w, r, a.operator.Connect(ctx))
}

func (a *Api) handleStart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request startRequest
	if err := decodeBody(r, &request); err != nil {
		a.badRequest(w, r, err)
		return
	}
	a.respond(w, r, a.operator.StartTransaction(request.IdTag))
}

func (a *Api) handleFault(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request faultRequest
	if err := decodeBody(r, &request); err != nil {
		a.badRequest(w, r, err)
		return
	}
	a.respond(w, r, a.operator.Fault(request.ErrorCode))
}

func (a *Api) handleSimulation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status, err := a.operator.Status()
	if err != nil {
		a.respond(w, r, err)
		return
	}
	settings := status.Settings
	if err = decodeBody(r, &settings); err != nil {
		a.badRequest(w, r, err)
		return
	}
	a.respond(w, r, a.operator.ApplySettings(settings))
}

func (a *Api) handleLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if a.logReader == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "log storage is not enabled"})
		return
	}
	messages, err := a.logReader.ReadLog()
	if err != nil {
		a.logger.Error("api: read log", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

package station

import (
	"encoding/json"
	"errors"
	"evsim/internal"
	"evsim/ocpp/core"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogReader struct {
	messages []internal.FeatureLogMessage
	err      error
}

func (r *fakeLogReader) ReadLog() ([]internal.FeatureLogMessage, error) {
	return r.messages, r.err
}

func serve(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, nil)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func statusBody(t *testing.T, recorder *httptest.ResponseRecorder) Status {
	t.Helper()
	var status Status
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	return status
}

func newApi(t *testing.T) (*Api, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewApi(testConfig(), f.station, testLogger{}), f
}

func TestApi_Status(t *testing.T) {
	api, _ := newApi(t)
	recorder := serve(t, api.Handler(), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	status := statusBody(t, recorder)
	assert.Equal(t, "CP1", status.StationId)
	assert.False(t, status.Connected)
	assert.Equal(t, core.ChargePointStatusUnavailable, status.Connector.Status)
}

func TestApi_PlugAndGuards(t *testing.T) {
	api, _ := newApi(t)
	handler := api.Handler()

	recorder := serve(t, handler, http.MethodPost, "/plug", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, statusBody(t, recorder).Connector.Plugged)

	assert.Equal(t, http.StatusConflict, serve(t, handler, http.MethodPost, "/plug", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, handler, http.MethodPost, "/start", `{"idTag":""}`).Code)
	assert.Equal(t, http.StatusConflict, serve(t, handler, http.MethodPost, "/start", `{"idTag":"ABC"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, handler, http.MethodPost, "/start", `{"idTag":`).Code)
	assert.Equal(t, http.StatusConflict, serve(t, handler, http.MethodPost, "/stop", "").Code)
	assert.Equal(t, http.StatusConflict, serve(t, handler, http.MethodPost, "/disconnect", "").Code)

	recorder = serve(t, handler, http.MethodPost, "/unplug", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.False(t, statusBody(t, recorder).Connector.Plugged)
}

func TestApi_FaultAndClear(t *testing.T) {
	api, _ := newApi(t)
	handler := api.Handler()

	recorder := serve(t, handler, http.MethodPost, "/fault", `{"errorCode":"Bogus"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "invalid error code")

	recorder = serve(t, handler, http.MethodPost, "/fault", `{"errorCode":"HighTemperature"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	status := statusBody(t, recorder)
	assert.Equal(t, core.ChargePointStatusFaulted, status.Connector.Status)
	assert.Equal(t, core.HighTemperature, status.Connector.ErrorCode)

	recorder = serve(t, handler, http.MethodPost, "/fault/clear", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, core.ChargePointStatusUnavailable, statusBody(t, recorder).Connector.Status, "not booted yet")
	assert.Equal(t, http.StatusConflict, serve(t, handler, http.MethodPost, "/fault/clear", "").Code)
}

func TestApi_Simulation(t *testing.T) {
	api, _ := newApi(t)
	handler := api.Handler()

	recorder := serve(t, handler, http.MethodPut, "/simulation", `{"charging_power_kw":500}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = serve(t, handler, http.MethodPut, "/simulation", `{"charging_power_kw":7.4,"meter_interval":15}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	settings := statusBody(t, recorder).Settings
	assert.Equal(t, 7.4, settings.ChargingPowerKw)
	assert.Equal(t, 15, settings.MeterInterval)
	assert.Equal(t, 230.0, settings.VoltageV, "fields left out keep their value")
}

func TestApi_Connect(t *testing.T) {
	api, f := newApi(t)
	handler := api.Handler()

	f.dialer.err = errors.New("refused")
	assert.Equal(t, http.StatusBadGateway, serve(t, handler, http.MethodPost, "/connect", "").Code)

	f.dialer.err = nil
	recorder := serve(t, handler, http.MethodPost, "/connect", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, statusBody(t, recorder).Connected)
	assert.Equal(t, http.StatusConflict, serve(t, handler, http.MethodPost, "/connect", "").Code)
	assert.Equal(t, http.StatusOK, serve(t, handler, http.MethodPost, "/disconnect", "").Code)
}

func TestApi_Log(t *testing.T) {
	api, _ := newApi(t)
	assert.Equal(t, http.StatusNotFound, serve(t, api.Handler(), http.MethodGet, "/log", "").Code)

	api.SetLogReader(&fakeLogReader{messages: []internal.FeatureLogMessage{{Feature: "Heartbeat", Text: "sent"}}})
	recorder := serve(t, api.Handler(), http.MethodGet, "/log", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Heartbeat")

	api.SetLogReader(&fakeLogReader{err: errors.New("db down")})
	assert.Equal(t, http.StatusInternalServerError, serve(t, api.Handler(), http.MethodGet, "/log", "").Code)
}

func TestApi_UnknownRoute(t *testing.T) {
	api, _ := newApi(t)
	assert.Equal(t, http.StatusNotFound, serve(t, api.Handler(), http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, api.Handler(), http.MethodGet, "/plug", "").Code)
}

package connector

import (
	"evsim/internal"
	"evsim/ocpp"
	"evsim/ocpp/core"
	"evsim/registry"
	"evsim/simulation"
	"evsim/types"
	"evsim/utility"
	"fmt"
	"math"
	"time"
)

const Id = 1

type Origin string

const (
	OriginNone   Origin = ""
	OriginLocal  Origin = "Local"
	OriginRemote Origin = "Remote"
)

type State struct {
	Status        core.ChargePointStatus    `json:"status"`
	ErrorCode     core.ChargePointErrorCode `json:"error_code"`
	TransactionId *int                      `json:"transaction_id"`
	Origin        Origin                    `json:"origin"`
	Plugged       bool                      `json:"plugged"`
	IdTag         string                    `json:"id_tag,omitempty"`
	Authorizing   bool                      `json:"authorizing"`
}

// Caller is the part of the transport the machine sends through
type Caller interface {
	SendCall(request ocpp.Request) (string, error)
	Connected() bool
}

// Metering is the part of the scheduler driven by transaction boundaries
type Metering interface {
	StartMetering()
	StopMetering()
	Now() time.Time
}

type IntReader interface {
	Int(key string) (int, bool)
}

// Machine is the state of connector 1; every method must run on the station loop
type Machine struct {
	state    State
	caller   Caller
	engine   *simulation.Engine
	metering Metering
	config   IntReader
	logger   internal.LogHandler
	events   internal.EventHandler
	// booted is set between an accepted BootNotification and the next disconnect
	booted bool
}

func NewMachine(caller Caller, engine *simulation.Engine, metering Metering, config IntReader, logger internal.LogHandler) *Machine {
	return &Machine{
		state: State{
			Status:    core.ChargePointStatusUnavailable,
			ErrorCode: core.NoError,
		},
		caller:   caller,
		engine:   engine,
		metering: metering,
		config:   config,
		logger:   logger,
	}
}

func (m *Machine) SetEventHandler(events internal.EventHandler) {
	m.events = events
}

// Snapshot returns a copy of the connector state
func (m *Machine) Snapshot() State {
	state := m.state
	if m.state.TransactionId != nil {
		id := *m.state.TransactionId
		state.TransactionId = &id
	}
	return state
}

func (m *Machine) now() time.Time {
	return m.metering.Now()
}

func (m *Machine) setStatus(status core.ChargePointStatus) {
	m.state.Status = status
	if status != core.ChargePointStatusFaulted {
		m.state.ErrorCode = core.NoError
	}
	m.sendStatus(Id, status, m.state.ErrorCode)
	m.publishStatus()
}

func (m *Machine) publishStatus() {
	if m.events != nil {
		m.events.OnStatus(&internal.EventMessage{
			ConnectorId: Id,
			Status:      string(m.state.Status),
			ErrorCode:   string(m.state.ErrorCode),
			Payload:     m.Snapshot(),
		})
	}
}

func (m *Machine) sendStatus(connectorId int, status core.ChargePointStatus, errorCode core.ChargePointErrorCode) {
	if !m.caller.Connected() {
		return
	}
	request := core.NewStatusNotificationRequest(connectorId, errorCode, status, m.now())
	if _, err := m.caller.SendCall(request); err != nil {
		m.logger.Error("status notification", err)
	}
}

func (m *Machine) send(request ocpp.Request) error {
	if _, err := m.caller.SendCall(request); err != nil {
		m.logger.Error(request.GetFeatureName(), err)
		return err
	}
	return nil
}

func (m *Machine) alert(text string) {
	m.logger.Warn(text)
	if m.events != nil {
		m.events.OnAlert(&internal.EventMessage{ConnectorId: Id, Info: text})
	}
}

func (m *Machine) publishPlug() {
	if m.events != nil {
		m.events.OnPlug(&internal.EventMessage{ConnectorId: Id, Plugged: m.state.Plugged})
	}
}

func (m *Machine) hasSession() bool {
	return m.state.TransactionId != nil || m.state.Origin != OriginNone
}

// PlugIn connects the cable; an Available connector moves to Preparing
func (m *Machine) PlugIn() error {
	if m.state.Plugged {
		return ErrAlreadyPlugged
	}
	m.state.Plugged = true
	if !m.hasSession() {
		m.engine.Reset(m.now())
	}
	m.publishPlug()
	if m.state.Status == core.ChargePointStatusAvailable {
		m.setStatus(core.ChargePointStatusPreparing)
	}
	return nil
}

// Unplug disconnects the cable. Finishing returns to Available, Preparing is kept.
func (m *Machine) Unplug() error {
	if !m.state.Plugged {
		return ErrNotPlugged
	}
	if m.hasSession() {
		return ErrTransactionActive
	}
	m.state.Plugged = false
	m.publishPlug()
	if m.state.Status == core.ChargePointStatusFinishing {
		m.setStatus(core.ChargePointStatusAvailable)
	}
	return nil
}

// StartLocal begins an operator session with an Authorize exchange
func (m *Machine) StartLocal(idTag string) error {
	switch {
	case idTag == "":
		return ErrEmptyIdTag
	case !m.state.Plugged:
		return ErrNotPlugged
	case m.state.Status != core.ChargePointStatusPreparing:
		return ErrNotPreparing
	case m.hasSession():
		return ErrSessionActive
	case m.state.Authorizing:
		return ErrAuthorizing
	}
	if err := m.send(core.NewAuthorizeRequest(idTag)); err != nil {
		return err
	}
	m.state.Authorizing = true
	m.state.IdTag = idTag
	return nil
}

// idleStatus is where a connector without a session rests
func (m *Machine) idleStatus() core.ChargePointStatus {
	if m.state.Plugged {
		return core.ChargePointStatusPreparing
	}
	return core.ChargePointStatusAvailable
}

func (m *Machine) OnAuthorizeResult(response *core.AuthorizeResponse) {
	if !m.state.Authorizing {
		m.logger.Warn("authorize result without a pending authorization")
		return
	}
	m.state.Authorizing = false
	status := types.StatusOf(response.IdTagInfo)
	if status != types.AuthorizationStatusAccepted {
		m.alert(fmt.Sprintf("authorization failed: %s", status))
		if !m.hasSession() && m.state.Status == core.ChargePointStatusPreparing {
			m.setStatus(core.ChargePointStatusPreparing)
		}
		return
	}
	if !m.state.Plugged || m.state.Status != core.ChargePointStatusPreparing || m.hasSession() {
		m.logger.Warn(fmt.Sprintf("authorization accepted but connector is %s, session not started", m.state.Status))
		return
	}
	m.engine.Reset(m.now())
	m.state.Origin = OriginLocal
	if err := m.send(core.NewStartTransactionRequest(Id, m.state.IdTag, 0, m.now())); err != nil {
		m.state.Origin = OriginNone
	}
}

func (m *Machine) OnAuthorizeError(code, description string) {
	if !m.state.Authorizing {
		return
	}
	m.state.Authorizing = false
	m.alert(fmt.Sprintf("authorization error: %s %s", code, description))
}

func (m *Machine) OnStartTransactionResult(response *core.StartTransactionResponse) {
	if m.state.TransactionId != nil || m.state.Origin == OriginNone {
		m.logger.Warn("start transaction result without a pending start")
		return
	}
	status := types.StatusOf(response.IdTagInfo)
	if status != types.AuthorizationStatusAccepted {
		m.alert(fmt.Sprintf("transaction failed: %s", status))
		m.state.Origin = OriginNone
		m.setStatus(core.ChargePointStatusPreparing)
		return
	}
	id := response.TransactionId
	m.state.TransactionId = &id
	m.setStatus(core.ChargePointStatusCharging)
	m.engine.StartCharging(m.now())
	m.metering.StartMetering()
	m.logger.FeatureEvent(core.StartTransactionFeatureName, "", fmt.Sprintf("transaction %d started, %s session", id, m.state.Origin))
}

func (m *Machine) OnStartTransactionError(code, description string) {
	if m.state.TransactionId != nil || m.state.Origin == OriginNone {
		return
	}
	m.alert(fmt.Sprintf("start transaction error: %s %s", code, description))
	m.state.Origin = OriginNone
	m.setStatus(core.ChargePointStatusPreparing)
}

func (m *Machine) OnStopTransactionResult(response *core.StopTransactionResponse) {
	if response.IdTagInfo != nil {
		m.logger.FeatureEvent(core.StopTransactionFeatureName, "", fmt.Sprintf("id tag status %s", response.IdTagInfo.Status))
	}
}

// StopLocal ends an operator session
func (m *Machine) StopLocal() error {
	if m.state.TransactionId == nil {
		return ErrNoTransaction
	}
	if m.state.Origin == OriginRemote {
		return ErrRemoteSession
	}
	m.stopTransaction(core.ReasonLocal, core.ChargePointStatusFinishing)
	return nil
}

// OnRemoteStart handles RemoteStartTransaction; the StartTransaction call is sent before
// the returned status is answered
func (m *Machine) OnRemoteStart(request *core.RemoteStartTransactionRequest) types.RemoteStartStopStatus {
	connectorId := Id
	if request.ConnectorId != nil {
		connectorId = *request.ConnectorId
	}
	switch {
	case connectorId != Id,
		m.hasSession(),
		m.state.Status == core.ChargePointStatusFaulted,
		m.state.Status == core.ChargePointStatusUnavailable:
		return types.RemoteStartStopStatusRejected
	}
	m.state.Origin = OriginRemote
	m.state.IdTag = request.IdTag
	m.engine.Reset(m.now())
	if err := m.send(core.NewStartTransactionRequest(connectorId, request.IdTag, 0, m.now())); err != nil {
		m.state.Origin = OriginNone
		return types.RemoteStartStopStatusRejected
	}
	return types.RemoteStartStopStatusAccepted
}

// OnRemoteStop handles RemoteStopTransaction for whatever transaction is running
func (m *Machine) OnRemoteStop(request *core.RemoteStopTransactionRequest) types.RemoteStartStopStatus {
	if m.state.TransactionId == nil {
		return types.RemoteStartStopStatusRejected
	}
	if request.TransactionId != *m.state.TransactionId {
		m.logger.Warn(fmt.Sprintf("remote stop for transaction %d, running %d", request.TransactionId, *m.state.TransactionId))
	}
	m.stopTransaction(core.ReasonRemote, core.ChargePointStatusFinishing)
	return types.RemoteStartStopStatusAccepted
}

// Fault forces the Faulted status, terminating a running transaction first
func (m *Machine) Fault(code string) error {
	errorCode := core.ConnectorLockFailure
	if code != "" {
		known, ok := core.GetErrorCode(code)
		if !ok || known == core.NoError {
			return ErrInvalidErrorCode
		}
		errorCode = known
	}
	m.state.Authorizing = false
	if m.state.TransactionId != nil {
		m.stopTransaction(core.ReasonEmergencyStop, "")
	}
	m.state.Origin = OriginNone
	m.state.ErrorCode = errorCode
	m.setStatus(core.ChargePointStatusFaulted)
	m.alert(fmt.Sprintf("connector faulted: %s", errorCode))
	return nil
}

// ClearFault leaves Faulted for Preparing when plugged, Available otherwise. Before the
// boot handshake the connector goes back to Unavailable.
func (m *Machine) ClearFault() error {
	if m.state.Status != core.ChargePointStatusFaulted {
		return ErrNotFaulted
	}
	if !m.booted {
		m.setStatus(core.ChargePointStatusUnavailable)
		return nil
	}
	m.setStatus(m.idleStatus())
	return nil
}

// stopTransaction reports the final sample, stops the session and moves to next; an empty
// next leaves the status to the caller
func (m *Machine) stopTransaction(reason core.Reason, next core.ChargePointStatus) {
	transactionId := *m.state.TransactionId
	m.ReportMeterValues(types.ReadingContextTransactionEnd)
	m.metering.StopMetering()
	m.engine.Stop()
	meterStop := int(math.Round(m.engine.State().MeterWh))
	request := core.NewStopTransactionRequest(transactionId, meterStop, reason, m.now())
	request.IdTag = m.state.IdTag
	if err := m.send(request); err != nil {
		m.alert(fmt.Sprintf("transaction %d closed locally, StopTransaction not delivered: %v", transactionId, err))
	}
	m.state.TransactionId = nil
	m.state.Origin = OriginNone
	m.logger.FeatureEvent(core.StopTransactionFeatureName, "", fmt.Sprintf("transaction %d stopped: %s, %d Wh", transactionId, reason, meterStop))
	if next != "" {
		m.setStatus(next)
	}
}

// Advance runs one simulation step; the sample only goes to observers
func (m *Machine) Advance() {
	sample := m.engine.Tick(m.now())
	if m.events != nil {
		m.events.OnSample(&internal.EventMessage{ConnectorId: Id, Payload: sample})
	}
}

// ReportMeterValues sends the current sample of a running transaction
func (m *Machine) ReportMeterValues(context types.ReadingContext) {
	if m.state.TransactionId == nil || !m.caller.Connected() {
		return
	}
	sample := m.engine.Snapshot(m.now())
	request := core.NewMeterValuesRequest(Id, *m.state.TransactionId, sample.MeterValue(context))
	_ = m.send(request)
}

// OnBooted reports every connector after an accepted BootNotification. A transaction that
// survived the reconnect keeps charging.
func (m *Machine) OnBooted() {
	connectors, ok := m.config.Int(registry.KeyNumberOfConnectors)
	if !ok {
		connectors = 1
	}
	m.booted = true
	m.sendStatus(0, core.ChargePointStatusAvailable, core.NoError)
	switch {
	case m.state.TransactionId != nil:
		m.setStatus(core.ChargePointStatusCharging)
		m.engine.StartCharging(m.now())
		m.metering.StartMetering()
	case m.state.Status == core.ChargePointStatusFaulted:
		m.setStatus(core.ChargePointStatusFaulted)
	case m.state.Plugged:
		m.setStatus(core.ChargePointStatusPreparing)
	default:
		m.setStatus(core.ChargePointStatusAvailable)
	}
	for i := 2; i <= connectors; i++ {
		m.sendStatus(i, core.ChargePointStatusUnavailable, core.NoError)
	}
}

// OnConfigurationChanged broadcasts the connector topology after NumberOfConnectors changed
func (m *Machine) OnConfigurationChanged(key, value string) {
	if key != registry.KeyNumberOfConnectors {
		return
	}
	connectors, err := utility.ToInt(value)
	if err != nil {
		return
	}
	for i := 0; i <= connectors; i++ {
		status := core.ChargePointStatusUnavailable
		if i == 0 {
			status = core.ChargePointStatusAvailable
		}
		m.sendStatus(i, status, core.NoError)
	}
}

// OnDisconnected drops what depended on the connection; a running transaction is kept
func (m *Machine) OnDisconnected() {
	m.booted = false
	m.metering.StopMetering()
	m.state.Authorizing = false
	if m.state.TransactionId == nil && m.state.Origin != OriginNone {
		m.state.Origin = OriginNone
	}
}

// OnCommunicationError records the failure without changing the status
func (m *Machine) OnCommunicationError(err error) {
	if err == nil {
		return
	}
	m.logger.Warn(fmt.Sprintf("communication error: %v", err))
	m.state.ErrorCode = core.CommunicationError
	m.publishStatus()
}

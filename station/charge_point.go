package station

import (
	"context"
	"encoding/json"
	"errors"
	"evsim/connector"
	"evsim/internal"
	"evsim/internal/config"
	"evsim/ocpp"
	"evsim/ocpp/core"
	"evsim/registry"
	"evsim/scheduler"
	"evsim/simulation"
	"evsim/transport"
	"evsim/types"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConnected    = errors.New("already connected")
	ErrDisconnected = errors.New("not connected")
	ErrDial         = errors.New("connection failed")
	ErrStopped      = errors.New("station is stopped")
)

// Connection is an open link to the central system
type Connection interface {
	Send(data []byte) error
	Close() error
	// Listen starts delivering inbound frames; onClose is called once when the link is gone
	Listen(onFrame func(data []byte), onClose func(err error))
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Connection, error)
}

// sessionLogger is implemented by loggers that tag records with the connection session
type sessionLogger interface {
	SetStation(stationId, session string)
}

// ChargePoint owns every component of the emulated station. Component state is touched only
// on the loop; the exported methods are safe to call from any goroutine.
type ChargePoint struct {
	conf       *config.Config
	id         string
	logger     internal.LogHandler
	events     *internal.EventBus
	loop       *internal.Loop
	transport  *transport.Transport
	registry   *registry.Registry
	scheduler  *scheduler.Scheduler
	engine     *simulation.Engine
	machine    *connector.Machine
	dialer     Dialer
	conn       Connection
	session    string
	booted     bool
	bootStatus core.RegistrationStatus
	serverTime time.Time
	manual     bool
}

func NewChargePoint(conf *config.Config, logger internal.LogHandler, store registry.Store, clock scheduler.Clock) (*ChargePoint, error) {
	params := Parameters(conf.Simulation)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("simulation parameters: %w", err)
	}
	seed := conf.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cp := &ChargePoint{
		conf:   conf,
		id:     conf.Station.Id,
		logger: logger,
		events: internal.NewEventBus(conf.Station.Id),
		loop:   internal.NewLoop(256, logger),
		dialer: NewWebSocketDialer(conf, logger),
	}
	cp.transport = transport.NewTransport(logger)
	cp.transport.SetEventHandler(cp.events)
	cp.registry = registry.NewRegistry(store, logger)
	cp.scheduler = scheduler.NewScheduler(clock, cp.loop, cp.registry, logger)
	cp.scheduler.SetTarget(cp)
	cp.scheduler.SetSampleInterval(time.Duration(conf.Simulation.SampleIntervalMs) * time.Millisecond)
	cp.scheduler.SetMeterInterval(conf.Simulation.MeterInterval)
	cp.engine = simulation.NewEngine(params, rand.New(rand.NewSource(seed)))
	cp.machine = connector.NewMachine(cp.transport, cp.engine, cp.scheduler, cp.registry, logger)
	cp.machine.SetEventHandler(cp.events)
	cp.registry.AddListener(cp.scheduler)
	cp.registry.AddListener(cp.machine)
	cp.register()
	return cp, nil
}

// Parameters converts the configured baselines into engine parameters
func Parameters(conf config.Simulation) simulation.Parameters {
	return simulation.Parameters{
		ChargingPowerKw:    conf.ChargingPowerKw,
		BatteryCapacityKwh: conf.BatteryCapacityKwh,
		InitialSoc:         conf.InitialSoc,
		VoltageV:           conf.VoltageV,
		CurrentA:           conf.CurrentA,
		FrequencyHz:        conf.FrequencyHz,
		PowerFactor:        conf.PowerFactor,
		RampFraction:       conf.RampFraction,
	}
}

func (cp *ChargePoint) SetDialer(dialer Dialer) {
	cp.dialer = dialer
}

// Subscribe adds an observer of frames, status changes, samples and alerts
func (cp *ChargePoint) Subscribe(handler internal.EventHandler) {
	cp.events.Subscribe(handler)
}

func (cp *ChargePoint) Id() string {
	return cp.id
}

// Start runs the station loop until ctx is cancelled
func (cp *ChargePoint) Start(ctx context.Context) {
	cp.loop.Start(ctx)
}

func (cp *ChargePoint) Done() <-chan struct{} {
	return cp.loop.Done()
}

func (cp *ChargePoint) register() {
	t := cp.transport
	t.HandleResult(core.BootNotificationFeatureName, cp.onBootNotificationResult)
	t.HandleError(core.BootNotificationFeatureName, func(code transport.ErrorCode, description string) error {
		cp.alert(fmt.Sprintf("boot notification failed: %s %s", code, description))
		cp.scheduler.ScheduleBootRetry(0, cp.sendBootNotification)
		return nil
	})
	t.HandleResult(core.HeartbeatFeatureName, cp.onHeartbeatResult)
	t.HandleResult(core.AuthorizeFeatureName, func(payload json.RawMessage) error {
		var response core.AuthorizeResponse
		if err := ocpp.Decode(payload, &response); err != nil {
			cp.machine.OnAuthorizeError(string(transport.FormationViolation), err.Error())
			return fmt.Errorf("authorize result: %w", err)
		}
		cp.machine.OnAuthorizeResult(&response)
		return nil
	})
	t.HandleError(core.AuthorizeFeatureName, func(code transport.ErrorCode, description string) error {
		cp.machine.OnAuthorizeError(string(code), description)
		return nil
	})
	t.HandleResult(core.StartTransactionFeatureName, func(payload json.RawMessage) error {
		var response core.StartTransactionResponse
		if err := ocpp.Decode(payload, &response); err != nil {
			cp.machine.OnStartTransactionError(string(transport.FormationViolation), err.Error())
			return fmt.Errorf("start transaction result: %w", err)
		}
		cp.machine.OnStartTransactionResult(&response)
		return nil
	})
	t.HandleError(core.StartTransactionFeatureName, func(code transport.ErrorCode, description string) error {
		cp.machine.OnStartTransactionError(string(code), description)
		return nil
	})
	t.HandleResult(core.StopTransactionFeatureName, func(payload json.RawMessage) error {
		var response core.StopTransactionResponse
		if err := ocpp.Decode(payload, &response); err != nil {
			return fmt.Errorf("stop transaction result: %w", err)
		}
		cp.machine.OnStopTransactionResult(&response)
		return nil
	})

	t.HandleCall(core.RemoteStartTransactionFeatureName, cp.onRemoteStartTransaction)
	t.HandleCall(core.RemoteStopTransactionFeatureName, cp.onRemoteStopTransaction)
	t.HandleCall(core.SetConfigurationFeatureName, cp.onSetConfiguration)
	t.HandleCall(core.ChangeConfigurationFeatureName, cp.onChangeConfiguration)
	t.HandleCall(core.GetConfigurationFeatureName, cp.onGetConfiguration)
}

func (cp *ChargePoint) alert(text string) {
	cp.logger.Warn(text)
	cp.events.OnAlert(&internal.EventMessage{Info: text})
}

func (cp *ChargePoint) endpoint() string {
	return strings.TrimSuffix(cp.conf.CentralSystem.Url, "/") + "/" + cp.id
}

// Connect dials the central system and sends the BootNotification
func (cp *ChargePoint) Connect(ctx context.Context) error {
	var connected bool
	if !cp.loop.Do(func() {
		connected = cp.conn != nil
		cp.manual = false
	}) {
		return ErrStopped
	}
	if connected {
		return ErrConnected
	}

	url := cp.endpoint()
	conn, err := cp.dialer.Dial(ctx, url)
	if err != nil {
		cp.loop.Post(func() {
			cp.machine.OnCommunicationError(err)
			cp.events.OnConnection(&internal.EventMessage{Connected: false, Info: err.Error()})
		})
		return fmt.Errorf("%w: %v", ErrDial, err)
	}

	var duplicate bool
	if !cp.loop.Do(func() {
		if cp.conn != nil {
			duplicate = true
			return
		}
		cp.onConnected(conn, url)
	}) {
		_ = conn.Close()
		return ErrStopped
	}
	if duplicate {
		_ = conn.Close()
		return ErrConnected
	}
	conn.Listen(
		func(data []byte) {
			cp.loop.Post(func() { cp.onFrame(conn, data) })
		},
		func(err error) {
			cp.loop.Post(func() { cp.onConnectionClosed(conn, err) })
		},
	)
	return nil
}

// Disconnect closes the connection; automatic reconnects stay off until the next Connect
func (cp *ChargePoint) Disconnect() error {
	var conn Connection
	if !cp.loop.Do(func() {
		cp.manual = true
		conn = cp.conn
		if conn != nil {
			cp.onConnectionClosed(conn, nil)
		}
	}) {
		return ErrStopped
	}
	if conn == nil {
		return ErrDisconnected
	}
	return conn.Close()
}

// KeepConnected dials whenever the station is disconnected, until ctx is done or the
// operator disconnects explicitly
func (cp *ChargePoint) KeepConnected(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var wanted bool
		if !cp.loop.Do(func() { wanted = cp.conn == nil && !cp.manual }) {
			return
		}
		if wanted {
			if err := cp.Connect(ctx); err != nil && !errors.Is(err, ErrConnected) {
				cp.logger.Warn(fmt.Sprintf("connect to %s: %v", cp.endpoint(), err))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (cp *ChargePoint) onConnected(conn Connection, url string) {
	cp.conn = conn
	cp.session = uuid.New().String()
	cp.events.SetSession(cp.session)
	if logger, ok := cp.logger.(sessionLogger); ok {
		logger.SetStation(cp.id, cp.session)
	}
	cp.transport.SetSender(conn)
	cp.logger.FeatureEvent("connection", cp.id, fmt.Sprintf("connected to %s, session %s", url, cp.session))
	cp.events.OnConnection(&internal.EventMessage{Connected: true, Info: url})
	cp.sendBootNotification()
}

// onConnectionClosed clears everything bound to the connection; a transaction survives
func (cp *ChargePoint) onConnectionClosed(conn Connection, err error) {
	if conn != cp.conn {
		return
	}
	cp.conn = nil
	cp.booted = false
	cp.transport.SetSender(nil)
	cp.transport.Reset()
	cp.scheduler.Stop()
	cp.machine.OnDisconnected()
	info := "closed"
	if err != nil {
		info = err.Error()
		cp.machine.OnCommunicationError(err)
	}
	cp.logger.FeatureEvent("connection", cp.id, "disconnected: "+info)
	cp.events.OnConnection(&internal.EventMessage{Connected: false, Info: info})
}

func (cp *ChargePoint) onFrame(conn Connection, data []byte) {
	if conn != cp.conn {
		return
	}
	if err := cp.transport.OnFrame(data); err != nil {
		cp.logger.Error("handle frame", err)
	}
}

func (cp *ChargePoint) sendBootNotification() {
	if !cp.transport.Connected() {
		return
	}
	s := cp.conf.Station
	request := &core.BootNotificationRequest{
		ChargePointVendor:       s.Vendor,
		ChargePointModel:        s.Model,
		ChargePointSerialNumber: s.ChargePointSerialNumber,
		ChargeBoxSerialNumber:   s.ChargeBoxSerialNumber,
		FirmwareVersion:         s.FirmwareVersion,
		Iccid:                   s.Iccid,
		Imsi:                    s.Imsi,
		MeterType:               s.MeterType,
		MeterSerialNumber:       s.MeterSerialNumber,
	}
	if _, err := cp.transport.SendCall(request); err != nil {
		cp.logger.Error("boot notification", err)
	}
}

func (cp *ChargePoint) onBootNotificationResult(payload json.RawMessage) error {
	var response core.BootNotificationResponse
	if err := ocpp.Decode(payload, &response); err != nil {
		cp.scheduler.ScheduleBootRetry(0, cp.sendBootNotification)
		return fmt.Errorf("boot notification result: %w", err)
	}
	cp.bootStatus = response.Status
	if response.CurrentTime != nil {
		cp.serverTime = response.CurrentTime.Time
	}
	if response.Status != core.RegistrationStatusAccepted {
		cp.alert(fmt.Sprintf("boot notification %s, retry in %d s", response.Status, response.Interval))
		cp.scheduler.ScheduleBootRetry(time.Duration(response.Interval)*time.Second, cp.sendBootNotification)
		return nil
	}
	cp.booted = true
	cp.scheduler.CancelBootRetry()
	cp.logger.FeatureEvent(core.BootNotificationFeatureName, cp.id, "accepted")
	cp.machine.OnBooted()
	cp.scheduler.StartHeartbeat()
	return nil
}

func (cp *ChargePoint) onHeartbeatResult(payload json.RawMessage) error {
	var response core.HeartbeatResponse
	if err := ocpp.Decode(payload, &response); err != nil {
		return fmt.Errorf("heartbeat result: %w", err)
	}
	cp.serverTime = response.CurrentTime.Time
	cp.logger.Debug(fmt.Sprintf("heartbeat: server time %s", cp.serverTime.Format(time.RFC3339)))
	return nil
}

func (cp *ChargePoint) onRemoteStartTransaction(uniqueId string, payload json.RawMessage) error {
	status := types.RemoteStartStopStatusRejected
	var request core.RemoteStartTransactionRequest
	if err := ocpp.Decode(payload, &request); err != nil {
		cp.logger.Warn(fmt.Sprintf("remote start rejected: %v", err))
	} else {
		status = cp.machine.OnRemoteStart(&request)
	}
	cp.logger.FeatureEvent(core.RemoteStartTransactionFeatureName, cp.id, string(status))
	return cp.transport.SendResult(uniqueId, core.NewRemoteStartTransactionResponse(status))
}

func (cp *ChargePoint) onRemoteStopTransaction(uniqueId string, payload json.RawMessage) error {
	status := types.RemoteStartStopStatusRejected
	var request core.RemoteStopTransactionRequest
	if err := ocpp.Decode(payload, &request); err != nil {
		cp.logger.Warn(fmt.Sprintf("remote stop rejected: %v", err))
	} else {
		status = cp.machine.OnRemoteStop(&request)
	}
	cp.logger.FeatureEvent(core.RemoteStopTransactionFeatureName, cp.id, string(status))
	return cp.transport.SendResult(uniqueId, core.NewRemoteStopTransactionResponse(status))
}

func (cp *ChargePoint) onSetConfiguration(uniqueId string, payload json.RawMessage) error {
	var request core.SetConfigurationRequest
	if err := json.Unmarshal(payload, &request); err != nil || request == nil {
		return cp.transport.SendError(uniqueId, transport.FormationViolation, "payload must be an object of key values")
	}
	result := cp.registry.SetConfiguration(request)
	for _, entry := range result {
		if entry.Status != core.ConfigurationStatusAccepted {
			cp.alert(fmt.Sprintf("configuration %s: %s", entry.Key, entry.Status))
		}
	}
	return cp.transport.SendResult(uniqueId, &core.SetConfigurationResponse{ConfigurationKey: result})
}

func (cp *ChargePoint) onChangeConfiguration(uniqueId string, payload json.RawMessage) error {
	var request core.ChangeConfigurationRequest
	if err := ocpp.Decode(payload, &request); err != nil {
		return cp.transport.SendError(uniqueId, transport.FormationViolation, err.Error())
	}
	status := cp.registry.Change(request.Key, request.Value)
	if status != core.ConfigurationStatusAccepted {
		cp.alert(fmt.Sprintf("configuration %s: %s", request.Key, status))
	}
	return cp.transport.SendResult(uniqueId, core.NewChangeConfigurationResponse(status))
}

func (cp *ChargePoint) onGetConfiguration(uniqueId string, payload json.RawMessage) error {
	var request core.GetConfigurationRequest
	if err := ocpp.Decode(payload, &request); err != nil {
		return cp.transport.SendError(uniqueId, transport.FormationViolation, err.Error())
	}
	known, unknown := cp.registry.Get(request.Key)
	return cp.transport.SendResult(uniqueId, &core.GetConfigurationResponse{
		ConfigurationKey: known,
		UnknownKey:       unknown,
	})
}

// SendHeartbeat, AdvanceSimulation and ReportMeterValues are the scheduler callbacks

func (cp *ChargePoint) SendHeartbeat() {
	if !cp.transport.Connected() {
		return
	}
	if _, err := cp.transport.SendCall(core.NewHeartbeatRequest()); err != nil {
		cp.logger.Error("heartbeat", err)
	}
}

func (cp *ChargePoint) AdvanceSimulation() {
	cp.machine.Advance()
}

func (cp *ChargePoint) ReportMeterValues() {
	cp.machine.ReportMeterValues(types.ReadingContextSamplePeriodic)
}

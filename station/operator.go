package station

import (
	"evsim/connector"
	"evsim/ocpp/core"
	"evsim/simulation"
	"evsim/transport"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings are the operator controls of the physical model
type Settings struct {
	simulation.Parameters
	MeterInterval int `json:"meter_interval" validate:"gte=1,lte=60"`
}

type Status struct {
	StationId     string                  `json:"station_id"`
	Session       string                  `json:"session,omitempty"`
	Connected     bool                    `json:"connected"`
	Booted        bool                    `json:"booted"`
	BootStatus    core.RegistrationStatus `json:"boot_status,omitempty"`
	ServerTime    *time.Time              `json:"server_time,omitempty"`
	Heartbeat     bool                    `json:"heartbeat"`
	Metering      bool                    `json:"metering"`
	Connector     connector.State         `json:"connector"`
	Simulation    simulation.State        `json:"simulation"`
	Settings      Settings                `json:"settings"`
	Pending       []transport.PendingCall `json:"pending"`
	Configuration map[string]string       `json:"configuration"`
}

var settingsValidator = validator.New()

// do runs fn on the loop and returns its error
func (cp *ChargePoint) do(fn func() error) error {
	var err error
	if !cp.loop.Do(func() { err = fn() }) {
		return ErrStopped
	}
	return err
}

func (cp *ChargePoint) PlugIn() error {
	return cp.do(cp.machine.PlugIn)
}

func (cp *ChargePoint) Unplug() error {
	return cp.do(cp.machine.Unplug)
}

func (cp *ChargePoint) StartTransaction(idTag string) error {
	return cp.do(func() error {
		return cp.machine.StartLocal(idTag)
	})
}

func (cp *ChargePoint) StopTransaction() error {
	return cp.do(cp.machine.StopLocal)
}

func (cp *ChargePoint) Fault(errorCode string) error {
	return cp.do(func() error {
		return cp.machine.Fault(errorCode)
	})
}

func (cp *ChargePoint) ClearFault() error {
	return cp.do(cp.machine.ClearFault)
}

func (cp *ChargePoint) settings() Settings {
	return Settings{
		Parameters:    cp.engine.Parameters(),
		MeterInterval: int(cp.scheduler.MeteringPeriod() / time.Second),
	}
}

// ApplySettings changes the model baselines live. A new initial SoC or battery capacity
// replaces the current SoC, a new meter interval restarts metering.
func (cp *ChargePoint) ApplySettings(settings Settings) error {
	if err := settingsValidator.Struct(settings); err != nil {
		return err
	}
	return cp.do(func() error {
		previous := cp.engine.Parameters()
		if err := cp.engine.SetParameters(settings.Parameters); err != nil {
			return err
		}
		if previous.InitialSoc != settings.InitialSoc || previous.BatteryCapacityKwh != settings.BatteryCapacityKwh {
			cp.engine.SetSoc(settings.InitialSoc)
		}
		cp.scheduler.SetMeterInterval(settings.MeterInterval)
		cp.logger.FeatureEvent("simulation", cp.id, fmt.Sprintf("%.1f kW, meter every %d s", settings.ChargingPowerKw, settings.MeterInterval))
		return nil
	})
}

func (cp *ChargePoint) Status() (Status, error) {
	var status Status
	err := cp.do(func() error {
		status = Status{
			StationId:     cp.id,
			Session:       cp.session,
			Connected:     cp.conn != nil,
			Booted:        cp.booted,
			BootStatus:    cp.bootStatus,
			Heartbeat:     cp.scheduler.HeartbeatRunning(),
			Metering:      cp.scheduler.MeteringRunning(),
			Connector:     cp.machine.Snapshot(),
			Simulation:    cp.engine.State(),
			Settings:      cp.settings(),
			Pending:       cp.transport.Pending(),
			Configuration: cp.registry.Snapshot(),
		}
		if !cp.serverTime.IsZero() {
			serverTime := cp.serverTime
			status.ServerTime = &serverTime
		}
		return nil
	})
	return status, err
}

package scheduler

import (
	"evsim/internal"
	"evsim/registry"
	"fmt"
	"time"
)

const (
	DefaultHeartbeatInterval = 60
	DefaultMeterInterval     = 30
	DefaultSampleInterval    = 100 * time.Millisecond

	taskHeartbeat = "heartbeat"
	taskMetering  = "metering"
	taskBoot      = "boot-retry"
)

// Target receives the periodic obligations
type Target interface {
	SendHeartbeat()
	AdvanceSimulation()
	ReportMeterValues()
}

// IntReader is the part of the configuration registry the scheduler reads
type IntReader interface {
	Int(key string) (int, bool)
}

type Scheduler struct {
	clock          Clock
	executor       Executor
	logger         internal.LogHandler
	config         IntReader
	target         Target
	sampleInterval time.Duration
	meterInterval  int
	heartbeat      *Task
	sampling       *Task
	metering       *Task
	bootRetry      *Task
}

func NewScheduler(clock Clock, executor Executor, config IntReader, logger internal.LogHandler) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock:          clock,
		executor:       executor,
		config:         config,
		logger:         logger,
		sampleInterval: DefaultSampleInterval,
		meterInterval:  DefaultMeterInterval,
	}
}

func (s *Scheduler) SetTarget(target Target) {
	s.target = target
}

func (s *Scheduler) SetSampleInterval(interval time.Duration) {
	if interval > 0 {
		s.sampleInterval = interval
	}
}

// SetMeterInterval sets the metering period used while MeterValueSampleInterval is not configured
func (s *Scheduler) SetMeterInterval(seconds int) {
	if seconds <= 0 || seconds == s.meterInterval {
		return
	}
	s.meterInterval = seconds
	s.restartMetering()
}

func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *Scheduler) HeartbeatPeriod() time.Duration {
	if value, ok := s.config.Int(registry.KeyHeartbeatInterval); ok && value > 0 {
		return time.Duration(value) * time.Second
	}
	return DefaultHeartbeatInterval * time.Second
}

func (s *Scheduler) MeteringPeriod() time.Duration {
	if value, ok := s.config.Int(registry.KeyMeterValueSampleInterval); ok && value > 0 {
		return time.Duration(value) * time.Second
	}
	return time.Duration(s.meterInterval) * time.Second
}

// StartHeartbeat sends one heartbeat right away and then one per period
func (s *Scheduler) StartHeartbeat() {
	s.StopHeartbeat()
	period := s.HeartbeatPeriod()
	s.target.SendHeartbeat()
	s.heartbeat = startTask(s.clock, s.executor, period, false, s.target.SendHeartbeat)
	s.logger.FeatureEvent(taskHeartbeat, "", fmt.Sprintf("started, every %v", period))
}

func (s *Scheduler) StopHeartbeat() {
	if s.heartbeat == nil {
		return
	}
	s.heartbeat.Stop()
	s.heartbeat = nil
	s.logger.FeatureEvent(taskHeartbeat, "", "stopped")
}

func (s *Scheduler) HeartbeatRunning() bool {
	return s.heartbeat != nil
}

// StartMetering runs the fast simulation sampling and the MeterValues reporting
func (s *Scheduler) StartMetering() {
	s.StopMetering()
	period := s.MeteringPeriod()
	s.sampling = startTask(s.clock, s.executor, s.sampleInterval, false, s.target.AdvanceSimulation)
	s.metering = startTask(s.clock, s.executor, period, false, s.target.ReportMeterValues)
	s.logger.FeatureEvent(taskMetering, "", fmt.Sprintf("started, every %v", period))
}

func (s *Scheduler) StopMetering() {
	if s.sampling == nil && s.metering == nil {
		return
	}
	s.sampling.Stop()
	s.metering.Stop()
	s.sampling = nil
	s.metering = nil
	s.logger.FeatureEvent(taskMetering, "", "stopped")
}

func (s *Scheduler) MeteringRunning() bool {
	return s.metering != nil
}

func (s *Scheduler) restartMetering() {
	if s.metering != nil && s.metering.Period() != s.MeteringPeriod() {
		s.StartMetering()
	}
}

// ScheduleBootRetry runs retry once after the delay, replacing any earlier retry
func (s *Scheduler) ScheduleBootRetry(after time.Duration, retry func()) {
	s.CancelBootRetry()
	if after <= 0 {
		after = DefaultHeartbeatInterval * time.Second
	}
	s.bootRetry = startTask(s.clock, s.executor, after, true, func() {
		s.bootRetry = nil
		retry()
	})
	s.logger.FeatureEvent(taskBoot, "", fmt.Sprintf("boot retry in %v", after))
}

func (s *Scheduler) CancelBootRetry() {
	s.bootRetry.Stop()
	s.bootRetry = nil
}

// Stop cancels every task
func (s *Scheduler) Stop() {
	s.StopHeartbeat()
	s.StopMetering()
	s.CancelBootRetry()
}

// OnConfigurationChanged restarts running tasks whose period was changed
func (s *Scheduler) OnConfigurationChanged(key, _ string) {
	switch key {
	case registry.KeyHeartbeatInterval:
		if s.heartbeat != nil && s.heartbeat.Period() != s.HeartbeatPeriod() {
			s.StartHeartbeat()
		}
	case registry.KeyMeterValueSampleInterval:
		s.restartMetering()
	}
}

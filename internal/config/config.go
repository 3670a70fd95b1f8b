package config

import (
	"log"

	"github.com/ilyakaznacheev/cleanenv"
)

const DefaultPath = "config.yml"

type Config struct {
	IsDebug  bool   `yaml:"is_debug" env:"EVSIM_DEBUG" env-default:"false"`
	LogLevel string `yaml:"log_level" env:"EVSIM_LOG_LEVEL" env-default:"info"`
	TimeZone string `yaml:"time_zone" env-default:"UTC"`
	Station  struct {
		Id                      string `yaml:"id" env:"EVSIM_STATION_ID"`
		Vendor                  string `yaml:"vendor" env-default:"evsim"`
		Model                   string `yaml:"model" env-default:"Emulator"`
		ChargePointSerialNumber string `yaml:"charge_point_serial_number"`
		ChargeBoxSerialNumber   string `yaml:"charge_box_serial_number"`
		FirmwareVersion         string `yaml:"firmware_version" env-default:"1.0.0"`
		Iccid                   string `yaml:"iccid"`
		Imsi                    string `yaml:"imsi"`
		MeterType               string `yaml:"meter_type"`
		MeterSerialNumber       string `yaml:"meter_serial_number"`
	} `yaml:"station"`
	CentralSystem struct {
		Url               string `yaml:"url" env:"EVSIM_CS_URL" env-default:"ws://localhost:5000/ws"`
		ReconnectInterval int    `yaml:"reconnect_interval" env-default:"0"`
		ConnectTimeout    int    `yaml:"connect_timeout" env-default:"10"`
		AutoConnect       bool   `yaml:"auto_connect" env-default:"true"`
	} `yaml:"central_system"`
	Simulation    Simulation `yaml:"simulation"`
	Configuration struct {
		Store    string `yaml:"store" env-default:"memory"`
		FilePath string `yaml:"file_path" env-default:"ocpp_config.yml"`
	} `yaml:"configuration"`
	Api struct {
		Enabled bool   `yaml:"enabled" env-default:"true"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"8080"`
	} `yaml:"api"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"9100"`
	} `yaml:"metrics"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env:"EVSIM_MONGO_PASSWORD" env-default:""`
		Database string `yaml:"database" env-default:"evsim"`
	} `yaml:"mongo"`
	Nats struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		Url     string `yaml:"url" env-default:"nats://127.0.0.1:4222"`
		Subject string `yaml:"subject" env-default:"evsim"`
	} `yaml:"nats"`
	Telegram struct {
		Enabled bool    `yaml:"enabled" env-default:"false"`
		ApiKey  string  `yaml:"api_key" env:"EVSIM_TELEGRAM_KEY" env-default:""`
		ChatIds []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`
}

// Simulation holds the operator baselines of the physical model
type Simulation struct {
	ChargingPowerKw    float64 `yaml:"charging_power_kw" env-default:"22"`
	BatteryCapacityKwh float64 `yaml:"battery_capacity_kwh" env-default:"60"`
	InitialSoc         float64 `yaml:"initial_soc" env-default:"20"`
	VoltageV           float64 `yaml:"voltage_v" env-default:"230"`
	CurrentA           float64 `yaml:"current_a" env-default:"32"`
	FrequencyHz        float64 `yaml:"frequency_hz" env-default:"50"`
	PowerFactor        float64 `yaml:"power_factor" env-default:"0.95"`
	MeterInterval      int     `yaml:"meter_interval" env-default:"30"`
	SampleIntervalMs   int     `yaml:"sample_interval_ms" env-default:"100"`
	RampFraction       float64 `yaml:"ramp_fraction" env-default:"0.2"`
	Seed               int64   `yaml:"seed" env-default:"0"`
}

// Load reads a config file; environment variables override file values
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	log.Println("reading config " + path)
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		log.Println(desc)
		return nil, err
	}
	return conf, nil
}

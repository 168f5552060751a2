package config

import (
	"errors"
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"
)

type Config struct {
	IsDebug     bool `yaml:"is_debug" env:"EVSIM_DEBUG" env-default:"false"`
	ChargePoint struct {
		Id                string `yaml:"id" env:"EVSIM_CHARGE_POINT_ID" env-default:"SIM001"`
		Vendor            string `yaml:"vendor" env-default:"EVSim"`
		Model             string `yaml:"model" env-default:"Simulator"`
		SerialNumber      string `yaml:"serial_number" env-default:""`
		FirmwareVersion   string `yaml:"firmware_version" env-default:"1.0.0"`
		MeterType         string `yaml:"meter_type" env-default:"Virtual"`
		MeterSerialNumber string `yaml:"meter_serial_number" env-default:""`
		ConnectorId       int    `yaml:"connector_id" env-default:"1"`
	} `yaml:"charge_point"`
	CentralSystem struct {
		Url            string        `yaml:"url" env:"EVSIM_CENTRAL_SYSTEM_URL" env-default:"ws://localhost:5000/ws"`
		SubProtocol    string        `yaml:"sub_protocol" env-default:"ocpp1.6"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"10s"`
	} `yaml:"central_system"`
	Timing     Timing     `yaml:"timing"`
	Simulation Simulation `yaml:"simulation"`
	Log        struct {
		Level      string `yaml:"level" env-default:"info"`
		Format     string `yaml:"format" env-default:"console"`
		File       string `yaml:"file" env-default:""`
		MaxSizeMb  int    `yaml:"max_size_mb" env-default:"10"`
		MaxBackups int    `yaml:"max_backups" env-default:"3"`
		MaxAgeDays int    `yaml:"max_age_days" env-default:"7"`
	} `yaml:"log"`
	Console struct {
		Enabled bool `yaml:"enabled" env-default:"true"`
	} `yaml:"console"`
	Api struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"127.0.0.1"`
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
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:"evsim"`
	} `yaml:"mongo"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env:"EVSIM_TELEGRAM_KEY" env-default:""`
		ChatId  int64  `yaml:"chat_id" env-default:"0"`
	} `yaml:"telegram"`
}

type Timing struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" env-default:"60s"`
	UseServerInterval  bool          `yaml:"use_server_interval" env-default:"true"`
	SettleDelay        time.Duration `yaml:"settle_delay" env-default:"2s"`
	FollowUpDelay      time.Duration `yaml:"follow_up_delay" env-default:"1s"`
	CorrelationTimeout time.Duration `yaml:"correlation_timeout" env-default:"6s"`
	BootTimeout        time.Duration `yaml:"boot_timeout" env-default:"10s"`
	PendingCallTTL     time.Duration `yaml:"pending_call_ttl" env-default:"2m"`
}

// Simulation tunes the charging curve; none of it affects protocol behavior.
type Simulation struct {
	MeterInterval      time.Duration `yaml:"meter_interval" env-default:"5s"`
	AccelerationFactor float64       `yaml:"acceleration_factor" env-default:"12"`
	BatteryCapacityWh  float64       `yaml:"battery_capacity_wh" env-default:"50000"`
	InitialSoc         float64       `yaml:"initial_soc" env-default:"20"`
	MaxCurrent         float64       `yaml:"max_current" env-default:"16"`
	Voltage            float64       `yaml:"voltage" env-default:"230"`
	TaperThreshold     float64       `yaml:"taper_threshold" env-default:"80"`
	CurrentJitter      float64       `yaml:"current_jitter" env-default:"0.5"`
}

var instance *Config
var once sync.Once

// GetConfig reads the configuration once per process.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config")
		instance, err = Load(path)
		if err != nil {
			desc, _ := cleanenv.GetDescription(&Config{}, nil)
			log.Println(desc)
			instance = nil
		}
	})
	return instance, err
}

// Load reads path into a new Config; a missing file falls back to environment and defaults.
func Load(path string) (*Config, error) {
	conf := &Config{}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Printf("config file %s not found, using environment", path)
		if err = cleanenv.ReadEnv(conf); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	} else if err = cleanenv.ReadConfig(path, conf); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if c.ChargePoint.Id == "" {
		return fmt.Errorf("charge point id is empty")
	}
	if c.CentralSystem.Url == "" {
		return fmt.Errorf("central system url is empty")
	}
	if c.Timing.HeartbeatInterval <= 0 || c.Simulation.MeterInterval <= 0 {
		return fmt.Errorf("heartbeat and meter intervals must be positive")
	}
	if c.Timing.PendingCallTTL <= c.Timing.CorrelationTimeout || c.Timing.PendingCallTTL <= c.Timing.BootTimeout {
		return fmt.Errorf("pending call ttl %v must exceed correlation and boot timeouts", c.Timing.PendingCallTTL)
	}
	if c.Simulation.BatteryCapacityWh <= 0 {
		return fmt.Errorf("battery capacity must be positive")
	}
	if c.Simulation.AccelerationFactor <= 0 {
		return fmt.Errorf("acceleration factor must be positive")
	}
	if c.Simulation.InitialSoc < 0 || c.Simulation.InitialSoc > 100 {
		return fmt.Errorf("initial soc %v out of range", c.Simulation.InitialSoc)
	}
	if c.Simulation.TaperThreshold <= 0 || c.Simulation.TaperThreshold >= 100 {
		return fmt.Errorf("taper threshold %v out of range", c.Simulation.TaperThreshold)
	}
	return nil
}

// SerialNumber falls back to a name derived from the charge point id.
func (c *Config) SerialNumber() string {
	if c.ChargePoint.SerialNumber != "" {
		return c.ChargePoint.SerialNumber
	}
	return "SIM-" + c.ChargePoint.Id
}

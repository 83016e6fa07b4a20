package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dispatchboard/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	API        APIConfig        `yaml:"api"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Board      BoardConfig      `yaml:"board"`
	Geofence   GeofenceConfig   `yaml:"geofence"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	TenantID    string `yaml:"tenant_id"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TopicRoot  string `yaml:"topic_root"`
	QoS        byte   `yaml:"qos"`
	MaxRetries int    `yaml:"max_retries"`
	BackoffMS  int    `yaml:"backoff_ms"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	ScheduleSpreadSheetID string `yaml:"schedule_spreadsheet_id"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// GatewayConfig points a field agent at the dispatch server.
type GatewayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	UserID    int64         `yaml:"user_id"`
	UserName  string        `yaml:"user_name"`
	TruckID   int64         `yaml:"truck_id"`
	QueuePath string        `yaml:"queue_path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type BoardConfig struct {
	Trucks        []models.Truck        `yaml:"trucks"`
	TimeSlots     []models.TimeSlot     `yaml:"time_slots"`
	DeliveryTypes []models.DeliveryType `yaml:"delivery_types"`
}

type GeofenceConfig struct {
	RadiusMeters float64       `yaml:"radius_meters"`
	PushInterval time.Duration `yaml:"push_interval"`
}

func Load(configPath string) (*Config, error) {
	// Optional .env overlay before expanding ${VAR} references in YAML.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram notifier enabled but bot token is missing")
	}

	if c.Google.Enabled && c.Google.ScheduleSpreadSheetID == "" {
		return errors.New("google schedule mirror enabled but spreadsheet id is missing")
	}

	if err := ValidateTrucks(c.Board.Trucks); err != nil {
		return err
	}

	if len(c.Board.TimeSlots) != models.TimeSlotCount {
		return fmt.Errorf("board requires exactly %d time slots, got %d", models.TimeSlotCount, len(c.Board.TimeSlots))
	}

	return nil
}

func ValidateTrucks(trucks []models.Truck) error {
	truckIDs := make(map[int64]bool)
	for _, truck := range trucks {
		if truck.ID == 0 {
			return fmt.Errorf("truck '%s' has invalid ID 0", truck.Name)
		}
		if truckIDs[truck.ID] {
			return fmt.Errorf("duplicate truck ID found: %d", truck.ID)
		}
		truckIDs[truck.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if len(c.Board.TimeSlots) == 0 {
		c.Board.TimeSlots = append([]models.TimeSlot(nil), models.DefaultTimeSlots...)
	}

	if c.Geofence.RadiusMeters == 0 {
		c.Geofence.RadiusMeters = models.GeofenceRadiusMeters
	}
	if c.Geofence.PushInterval == 0 {
		c.Geofence.PushInterval = models.LocationPushInterval
	}

	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 10 * time.Second
	}

	if c.MQTT.TopicRoot == "" {
		c.MQTT.TopicRoot = "fleet"
	}
	if c.MQTT.MaxRetries == 0 {
		c.MQTT.MaxRetries = 3
	}
	if c.MQTT.BackoffMS == 0 {
		c.MQTT.BackoffMS = 100
	}
}

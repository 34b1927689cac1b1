package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "tacsim.cfg.json"

// EngineConfig holds simulation tuning.
type EngineConfig struct {
	TickInterval     time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	MoveStep         float64       `json:"moveStep" mapstructure:"moveStep"`
	DecisionInterval time.Duration `json:"decisionInterval" mapstructure:"decisionInterval"`
	RetreatThreshold float64       `json:"retreatThreshold" mapstructure:"retreatThreshold"`
	RetreatOffset    float64       `json:"retreatOffset" mapstructure:"retreatOffset"`
	HistoryInterval  time.Duration `json:"historyInterval" mapstructure:"historyInterval"`
	HistoryEntries   int           `json:"historyEntries" mapstructure:"historyEntries"`
	GridResolution   int           `json:"gridResolution" mapstructure:"gridResolution"`
	HeavyLossPercent int           `json:"heavyLossPercent" mapstructure:"heavyLossPercent"`
	CatalogFile      string        `json:"catalogFile" mapstructure:"catalogFile"`
	Locale           string        `json:"locale" mapstructure:"locale"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Type           string `json:"type" mapstructure:"type"`
	SQLitePath     string `json:"sqlitePath" mapstructure:"sqlitePath"`
	ArchiveHistory bool   `json:"archiveHistory" mapstructure:"archiveHistory"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB telemetry settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	Listen         string        `json:"listen" mapstructure:"listen"`
	AllowedOrigin  string        `json:"allowedOrigin" mapstructure:"allowedOrigin"`
	ClientBuffer   int           `json:"clientBuffer" mapstructure:"clientBuffer"`
	StatusInterval time.Duration `json:"statusInterval" mapstructure:"statusInterval"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./tacsimlogs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("engine.tickInterval", "50ms")
	viper.SetDefault("engine.moveStep", 0.00005)

	viper.SetDefault("decision.interval", "2s")
	viper.SetDefault("decision.retreatThreshold", 0.25)
	viper.SetDefault("decision.retreatOffset", 0.5)

	viper.SetDefault("history.interval", "1s")
	viper.SetDefault("history.maxEntries", 3600)

	viper.SetDefault("pathfind.resolution", 100)

	viper.SetDefault("combat.heavyLossPercent", 25)
	viper.SetDefault("combat.catalogFile", "")

	viper.SetDefault("battleLog.locale", "uk")

	viper.SetDefault("server.listen", ":8090")
	viper.SetDefault("server.allowedOrigin", "*")
	viper.SetDefault("server.clientBuffer", 256)
	viper.SetDefault("server.statusInterval", "30s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "./tacsim.db")
	viper.SetDefault("storage.archiveHistory", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "tacmap")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "tacsim")
	viper.SetDefault("influx.backupPath", "./tacsimlogs/influx_backup.log.gzip")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tacsim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults are in
// place even when the file cannot be read.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEngineConfig collects the simulation settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:     viper.GetDuration("engine.tickInterval"),
		MoveStep:         viper.GetFloat64("engine.moveStep"),
		DecisionInterval: viper.GetDuration("decision.interval"),
		RetreatThreshold: viper.GetFloat64("decision.retreatThreshold"),
		RetreatOffset:    viper.GetFloat64("decision.retreatOffset"),
		HistoryInterval:  viper.GetDuration("history.interval"),
		HistoryEntries:   viper.GetInt("history.maxEntries"),
		GridResolution:   viper.GetInt("pathfind.resolution"),
		HeavyLossPercent: viper.GetInt("combat.heavyLossPercent"),
		CatalogFile:      viper.GetString("combat.catalogFile"),
		Locale:           viper.GetString("battleLog.locale"),
	}
}

// GetStorageConfig collects the persistence settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:           viper.GetString("storage.type"),
		SQLitePath:     viper.GetString("storage.sqlite.path"),
		ArchiveHistory: viper.GetBool("storage.archiveHistory"),
	}
}

// GetDBConfig collects the Postgres settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig collects the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig collects the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetServerConfig collects the WebSocket listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:         viper.GetString("server.listen"),
		AllowedOrigin:  viper.GetString("server.allowedOrigin"),
		ClientBuffer:   viper.GetInt("server.clientBuffer"),
		StatusInterval: viper.GetDuration("server.statusInterval"),
	}
}

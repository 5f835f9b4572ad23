// Package config loads and validates the dialer's configuration from
// the process environment. There is no config file: every value
// named in the external interface contract is read from an
// environment variable, re-read in full on every /start trigger so a
// running process can pick up operational changes without a restart.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds every configuration value the dialer needs.
type Config struct {
	ARIURL      string
	ARIUsername string
	ARIPassword string
	ARITrunk    string

	OutboundNumber     string
	OutboundNumberFile string

	TargetEndpoint  string
	TargetExtension string
	TargetContext   string
	StasisApp       string
	CallTimeout     int
	MaxCC           int
	CallerID        string

	RecordingsDir   string
	RecordingFormat string

	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string
	MySQLTable    string

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	HTTPAddr string
}

// Load reads Config from the environment, applying defaults for
// every optional field and failing on anything the dialer cannot
// start without.
func Load() (Config, error) {
	c := Config{
		ARIURL:             os.Getenv("ARI_URL"),
		ARIUsername:        os.Getenv("ARI_USERNAME"),
		ARIPassword:        os.Getenv("ARI_PASSWORD"),
		ARITrunk:           os.Getenv("ARI_TRUNK"),
		OutboundNumber:     os.Getenv("OUTBOUND_NUMBER"),
		OutboundNumberFile: os.Getenv("OUTBOUND_NUMBER_FILE"),
		TargetEndpoint:     os.Getenv("TARGET_ENDPOINT"),
		TargetExtension:    envDefault("TARGET_EXTENSION", "777"),
		TargetContext:      envDefault("TARGET_CONTEXT", "default2"),
		StasisApp:          envDefault("STASIS_APP", "outbound_dialer"),
		CallerID:           os.Getenv("CALLER_ID"),
		RecordingsDir:      os.Getenv("RECORDINGS_DIR"),
		RecordingFormat:    envDefault("RECORDING_FORMAT", "wav"),
		MySQLHost:          os.Getenv("MYSQL_HOST"),
		MySQLUser:          os.Getenv("MYSQL_USER"),
		MySQLPassword:      os.Getenv("MYSQL_PASSWORD"),
		MySQLDatabase:      os.Getenv("MYSQL_DATABASE"),
		MySQLTable:         envDefault("MYSQL_TABLE", "call_leg_timelines"),
		MQTTBroker:         os.Getenv("MQTT_BROKER"),
		MQTTClientID:       envDefault("MQTT_CLIENT_ID", "outbound-dialer"),
		MQTTTopicPrefix:    envDefault("MQTT_TOPIC_PREFIX", "dialer"),
		HTTPAddr:           envDefault("HTTP_ADDR", "127.0.0.1:3000"),
	}

	var errs []string

	callTimeout, err := envInt("CALL_TIMEOUT", 30)
	if err != nil {
		errs = append(errs, err.Error())
	}
	c.CallTimeout = callTimeout

	maxCC, err := envInt("MAX_CC", 1)
	if err != nil {
		errs = append(errs, err.Error())
	} else if maxCC < 1 {
		errs = append(errs, fmt.Sprintf("MAX_CC must be a positive integer, got %d", maxCC))
	}
	c.MaxCC = maxCC

	mysqlPort, err := envInt("MYSQL_PORT", 3306)
	if err != nil {
		errs = append(errs, err.Error())
	}
	c.MySQLPort = mysqlPort

	if c.ARIURL == "" {
		errs = append(errs, "ARI_URL is required")
	}
	if c.ARIUsername == "" {
		errs = append(errs, "ARI_USERNAME is required")
	}
	if c.ARIPassword == "" {
		errs = append(errs, "ARI_PASSWORD is required")
	}
	if c.ARITrunk == "" {
		errs = append(errs, "ARI_TRUNK is required")
	}
	if c.OutboundNumber == "" && c.OutboundNumberFile == "" {
		errs = append(errs, "one of OUTBOUND_NUMBER or OUTBOUND_NUMBER_FILE is required")
	}
	if c.RecordingsDir == "" {
		errs = append(errs, "RECORDINGS_DIR is required")
	}
	if c.MySQLHost == "" {
		errs = append(errs, "MYSQL_HOST is required")
	}
	if c.MySQLDatabase == "" {
		errs = append(errs, "MYSQL_DATABASE is required")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return c, nil
}

// UsesNumberFile reports whether the file wins per §4.2 (open
// question (a) in §9): when both OUTBOUND_NUMBER and OUTBOUND_NUMBER_FILE
// are set, the file takes precedence.
func (c Config) UsesNumberFile() bool {
	return c.OutboundNumberFile != ""
}

// WatchdogDelayMs computes the cleanup watchdog delay per §4.2:
// max(CALL_TIMEOUT*1000+15000, 45000).
func (c Config) WatchdogDelayMs() int {
	delay := c.CallTimeout*1000 + 15000
	if delay < 45000 {
		return 45000
	}
	return delay
}

// TargetEndpointOrDefault returns the explicit TARGET_ENDPOINT if
// set, else the default Local/<TARGET_EXTENSION>@<TARGET_CONTEXT>.
func (c Config) TargetEndpointOrDefault() string {
	if c.TargetEndpoint != "" {
		return c.TargetEndpoint
	}
	return fmt.Sprintf("Local/%s@%s", c.TargetExtension, c.TargetContext)
}

// MySQLDSN builds a go-sql-driver/mysql data source name.
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4&loc=Local",
		c.MySQLUser, c.MySQLPassword, net.JoinHostPort(c.MySQLHost, strconv.Itoa(c.MySQLPort)), c.MySQLDatabase)
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

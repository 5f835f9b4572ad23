package config

import (
	"os"
	"testing"
)

// baseEnv sets every required variable so tests can override just
// the one they care about.
func baseEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"ARI_URL":         "http://127.0.0.1:8088/ari",
		"ARI_USERNAME":    "dialer",
		"ARI_PASSWORD":    "s3cret",
		"ARI_TRUNK":       "trunk1",
		"OUTBOUND_NUMBER": "5551234",
		"RECORDINGS_DIR":  "/var/spool/asterisk/recording",
		"MYSQL_HOST":      "127.0.0.1",
		"MYSQL_DATABASE":  "dialer",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
	for _, optional := range []string{
		"OUTBOUND_NUMBER_FILE", "MAX_CC", "CALL_TIMEOUT", "MYSQL_PORT",
		"TARGET_ENDPOINT", "TARGET_EXTENSION", "TARGET_CONTEXT", "MQTT_BROKER",
	} {
		os.Unsetenv(optional)
	}
}

func TestLoadValidConfig(t *testing.T) {
	baseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ARITrunk != "trunk1" {
		t.Errorf("expected trunk1, got %s", cfg.ARITrunk)
	}
	if cfg.MaxCC != 1 {
		t.Errorf("expected default MAX_CC=1, got %d", cfg.MaxCC)
	}
	if cfg.CallTimeout != 30 {
		t.Errorf("expected default CALL_TIMEOUT=30, got %d", cfg.CallTimeout)
	}
	if cfg.TargetExtension != "777" || cfg.TargetContext != "default2" {
		t.Errorf("expected default target extension/context, got %s/%s", cfg.TargetExtension, cfg.TargetContext)
	}
	if cfg.StasisApp != "outbound_dialer" {
		t.Errorf("expected default stasis app, got %s", cfg.StasisApp)
	}
	if cfg.RecordingFormat != "wav" {
		t.Errorf("expected default recording format wav, got %s", cfg.RecordingFormat)
	}
	if cfg.MySQLPort != 3306 {
		t.Errorf("expected default mysql port 3306, got %d", cfg.MySQLPort)
	}
	if cfg.HTTPAddr != "127.0.0.1:3000" {
		t.Errorf("expected default http addr, got %s", cfg.HTTPAddr)
	}
}

func TestOutboundNumberFileWinsOverInline(t *testing.T) {
	baseEnv(t)
	t.Setenv("OUTBOUND_NUMBER_FILE", "/tmp/numbers.txt")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.UsesNumberFile() {
		t.Error("expected the file to win when both are set")
	}
}

func TestTargetEndpointDefault(t *testing.T) {
	baseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TargetEndpointOrDefault() != "Local/777@default2" {
		t.Errorf("expected Local/777@default2, got %s", cfg.TargetEndpointOrDefault())
	}
}

func TestTargetEndpointExplicitOverridesDefault(t *testing.T) {
	baseEnv(t)
	t.Setenv("TARGET_ENDPOINT", "PJSIP/agentqueue")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TargetEndpointOrDefault() != "PJSIP/agentqueue" {
		t.Errorf("expected explicit target endpoint, got %s", cfg.TargetEndpointOrDefault())
	}
}

func TestWatchdogDelayFloorsAtFortyFiveSeconds(t *testing.T) {
	baseEnv(t)
	t.Setenv("CALL_TIMEOUT", "5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WatchdogDelayMs() != 45000 {
		t.Errorf("expected floor of 45000ms, got %d", cfg.WatchdogDelayMs())
	}
}

func TestWatchdogDelayScalesAboveFloor(t *testing.T) {
	baseEnv(t)
	t.Setenv("CALL_TIMEOUT", "60")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WatchdogDelayMs() != 60000+15000 {
		t.Errorf("expected 75000ms, got %d", cfg.WatchdogDelayMs())
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		unset  []string
		set    map[string]string
	}{
		{"missing ARI_URL", []string{"ARI_URL"}, nil},
		{"missing ARI_USERNAME", []string{"ARI_USERNAME"}, nil},
		{"missing ARI_PASSWORD", []string{"ARI_PASSWORD"}, nil},
		{"missing ARI_TRUNK", []string{"ARI_TRUNK"}, nil},
		{"missing numbers", []string{"OUTBOUND_NUMBER"}, nil},
		{"missing recordings dir", []string{"RECORDINGS_DIR"}, nil},
		{"missing mysql host", []string{"MYSQL_HOST"}, nil},
		{"missing mysql database", []string{"MYSQL_DATABASE"}, nil},
		{"invalid MAX_CC", nil, map[string]string{"MAX_CC": "0"}},
		{"non-integer MAX_CC", nil, map[string]string{"MAX_CC": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseEnv(t)
			for _, k := range tt.unset {
				os.Unsetenv(k)
			}
			for k, v := range tt.set {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

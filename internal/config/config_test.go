package config

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"gossipd/internal/member"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
		{
			name:  "single item",
			input: "127.0.0.1:2379",
			want:  []string{"127.0.0.1:2379"},
		},
		{
			name:  "multiple items",
			input: "10.0.0.1:2379,10.0.0.2:2379,10.0.0.3:2379",
			want:  []string{"10.0.0.1:2379", "10.0.0.2:2379", "10.0.0.3:2379"},
		},
		{
			name:  "with spaces and empty items",
			input: " 10.0.0.1:2379 , ,10.0.0.2:2379,",
			want:  []string{"10.0.0.1:2379", "10.0.0.2:2379"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseList(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, envMap(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.EtcdEndpoints, []string{}) {
		t.Errorf("Expected no etcd endpoints, got %v", cfg.EtcdEndpoints)
	}
	cfg.EtcdEndpoints = nil
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoad_EnvThenFlags(t *testing.T) {
	env := envMap(map[string]string{
		"GOSSIPD_LISTEN":     "10.0.0.2:7946",
		"GOSSIPD_INTRODUCER": "10.0.0.1:7946",
		"GOSSIPD_TFAIL":      "3",
		"GOSSIPD_TICK":       "250ms",
		"GOSSIPD_ETCD":       "10.0.0.9:2379, 10.0.0.10:2379",
		"GOSSIPD_LOG_DEV":    "true",
	})

	cfg, err := Load([]string{"--tfail", "4", "--tremove", "30", "--http", ""}, env)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != "10.0.0.2:7946" || cfg.Introducer != "10.0.0.1:7946" {
		t.Errorf("Unexpected addresses: listen=%s introducer=%s", cfg.Listen, cfg.Introducer)
	}
	if cfg.TFail != 4 {
		t.Errorf("Expected flag to override env for tfail, got %d", cfg.TFail)
	}
	if cfg.TRemove != 30 {
		t.Errorf("Expected tremove 30, got %d", cfg.TRemove)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("Expected tick 250ms, got %s", cfg.TickInterval)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("Expected HTTP disabled, got %q", cfg.HTTPAddr)
	}
	if !cfg.LogDevelopment {
		t.Error("Expected development logging from env")
	}
	if want := []string{"10.0.0.9:2379", "10.0.0.10:2379"}; !reflect.DeepEqual(cfg.EtcdEndpoints, want) {
		t.Errorf("Expected etcd endpoints %v, got %v", want, cfg.EtcdEndpoints)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	_, err := Load(nil, envMap(map[string]string{"GOSSIPD_TFAIL": "five"}))
	if err == nil || !strings.Contains(err.Error(), "GOSSIPD_TFAIL") {
		t.Errorf("Expected env parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "tfail zero", mutate: func(c *Config) { c.TFail = 0 }, wantErr: "tfail"},
		{name: "tremove not above tfail", mutate: func(c *Config) { c.TRemove = 5 }, wantErr: "tremove"},
		{name: "queue size zero", mutate: func(c *Config) { c.QueueSize = 0 }, wantErr: "queue size"},
		{name: "hostname listen", mutate: func(c *Config) { c.Listen = "localhost:7946" }, wantErr: "listen"},
		{name: "bad introducer", mutate: func(c *Config) { c.Introducer = "nope" }, wantErr: "introducer"},
		{
			name: "introducer ignored with etcd",
			mutate: func(c *Config) {
				c.Introducer = ""
				c.EtcdEndpoints = []string{"127.0.0.1:2379"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.TFail = 0
	cfg.Listen = "bad"

	err := cfg.Validate()
	if !errors.Is(err, member.ErrInvalidAddress) {
		t.Errorf("Expected wrapped ErrInvalidAddress, got %v", err)
	}
	if !strings.Contains(err.Error(), "tfail") {
		t.Errorf("Expected tfail error alongside address error, got %v", err)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := Default()
	cfg.Listen = "10.0.0.2:7946"
	intro := member.MustParseKey("10.0.0.1:7946")

	ec := cfg.EngineConfig(intro)
	if ec.Self != member.MustParseKey("10.0.0.2:7946") || ec.Introducer != intro {
		t.Errorf("Unexpected keys: %+v", ec)
	}
	if ec.TFail != 5 || ec.TRemove != 20 || ec.JoinTimeout != 40 || ec.MaxJoinAttempts != 3 {
		t.Errorf("Unexpected protocol parameters: %+v", ec)
	}
}

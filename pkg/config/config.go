// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

// Environment variables that override the config file
const (
	EnvID               = "PICKPLACE_ID"
	EnvInitialState     = "PICKPLACE_INITIAL_STATE"
	EnvMetricsPort      = "PICKPLACE_METRICS_PORT"
	EnvAPIPort          = "PICKPLACE_API_PORT"
	EnvDBPath           = "PICKPLACE_DB_PATH"
	EnvStallTimeout     = "PICKPLACE_STALL_TIMEOUT"
	EnvSentryDSN        = "PICKPLACE_SENTRY_DSN"
	EnvScenarioPath     = "PICKPLACE_SCENARIO"
	EnvRecoveryAttempts = "PICKPLACE_RECOVERY_ATTEMPTS"
)

type FullConfig struct {
	Controller ControllerConfig `yaml:"controller"`
	Loop       LoopConfig       `yaml:"loop"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Storage    StorageConfig    `yaml:"storage"`
	Agent      AgentConfig      `yaml:"agent"`
}

// ControllerConfig is the part of pickplace.ControllerConfig that is configurable
type ControllerConfig struct {
	ID               string        `yaml:"id"`
	InitialState     string        `yaml:"initialState"`     // pre_idle (default) or idle
	RecoveryAttempts uint64        `yaml:"recoveryAttempts"` // retries of the transient recovery routine
	RecoveryInterval time.Duration `yaml:"recoveryInterval"`
}

type LoopConfig struct {
	QueueSize       int           `yaml:"queueSize"`
	DispatchTimeout time.Duration `yaml:"dispatchTimeout"`
}

// WatchdogConfig enables the stall watchdog when StallTimeout is set
type WatchdogConfig struct {
	StallTimeout  time.Duration `yaml:"stallTimeout"`
	CheckInterval time.Duration `yaml:"checkInterval,omitempty"`
	ErrorCode     int           `yaml:"errorCode,omitempty"`
}

type StorageConfig struct {
	// DBPath is the SQLite file of the error log; empty keeps it in memory
	DBPath string `yaml:"dbPath"`
}

type AgentConfig struct {
	MetricsPort  int    `yaml:"metricsPort"` // 0 disables the metrics endpoint
	APIPort      int    `yaml:"apiPort"`     // 0 disables the operator API
	SentryDSN    string `yaml:"sentryDsn,omitempty"`
	ScenarioPath string `yaml:"scenario,omitempty"`
}

// Default returns the configuration used for everything the file leaves out
func Default() FullConfig {
	return FullConfig{
		Controller: ControllerConfig{
			ID:               "pickplace",
			InitialState:     string(pickplace.StatePreIdle),
			RecoveryAttempts: pickplace.DefaultRecoveryAttempts,
			RecoveryInterval: pickplace.DefaultRecoveryInterval,
		},
		Loop: LoopConfig{
			QueueSize:       64,
			DispatchTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			DBPath: "pickplace.db",
		},
		Agent: AgentConfig{
			MetricsPort: 8080,
			APIPort:     8081,
		},
	}
}

// Load reads the file at path on top of the defaults and applies the
// environment overrides. A missing file is not an error when path is empty.
func Load(path string) (FullConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return FullConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return FullConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return FullConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return FullConfig{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (FullConfig, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FullConfig{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment
func (c *FullConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvID); ok && v != "" {
		c.Controller.ID = v
	}
	if v, ok := lookup(EnvInitialState); ok && v != "" {
		c.Controller.InitialState = v
	}
	if v, ok := lookup(EnvDBPath); ok {
		c.Storage.DBPath = v
	}
	if v, ok := lookup(EnvSentryDSN); ok {
		c.Agent.SentryDSN = v
	}
	if v, ok := lookup(EnvScenarioPath); ok {
		c.Agent.ScenarioPath = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{EnvMetricsPort, &c.Agent.MetricsPort},
		{EnvAPIPort, &c.Agent.APIPort},
	}
	for _, i := range ints {
		v, ok := lookup(i.env)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.env, err)
		}
		*i.dst = n
	}

	if v, ok := lookup(EnvRecoveryAttempts); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRecoveryAttempts, err)
		}
		c.Controller.RecoveryAttempts = n
	}

	if v, ok := lookup(EnvStallTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStallTimeout, err)
		}
		c.Watchdog.StallTimeout = d
	}
	return nil
}

// Validate checks the values Load cannot fix up
func (c FullConfig) Validate() error {
	var errs []error

	if c.Controller.ID == "" {
		errs = append(errs, errors.New("controller.id must not be empty"))
	}
	state, err := pickplace.ParseState(c.Controller.InitialState)
	if err != nil {
		errs = append(errs, fmt.Errorf("controller.initialState: %w", err))
	} else if state != pickplace.StatePreIdle && state != pickplace.StateIdle {
		errs = append(errs, fmt.Errorf("controller.initialState must be %s or %s, got %s", pickplace.StatePreIdle, pickplace.StateIdle, state))
	}
	if c.Loop.QueueSize < 0 {
		errs = append(errs, errors.New("loop.queueSize must not be negative"))
	}
	if c.Watchdog.StallTimeout < 0 {
		errs = append(errs, errors.New("watchdog.stallTimeout must not be negative"))
	}
	for name, port := range map[string]int{"agent.metricsPort": c.Agent.MetricsPort, "agent.apiPort": c.Agent.APIPort} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d is out of range", name, port))
		}
	}
	if c.Agent.MetricsPort != 0 && c.Agent.MetricsPort == c.Agent.APIPort {
		errs = append(errs, fmt.Errorf("agent.metricsPort and agent.apiPort must differ, both are %d", c.Agent.APIPort))
	}

	return errors.Join(errs...)
}

// State returns the initial state, PreIdle if it does not parse
func (c ControllerConfig) State() pickplace.State {
	state, err := pickplace.ParseState(c.InitialState)
	if err != nil {
		return pickplace.StatePreIdle
	}
	return state
}

package config

type SessionConfig struct {
	DefaultAgentID string            `yaml:"default_agent_id"`
	Memory         MemoryConfig      `yaml:"memory"`
	Heartbeat      HeartbeatConfig   `yaml:"heartbeat"`
	MemoryFlush    MemoryFlushConfig `yaml:"memory_flush"`
	Idle           IdleConfig        `yaml:"idle"`
}

// IdleConfig controls automatic reset of the single long-lived console
// session when the operator has been away.
type IdleConfig struct {
	// Mode is the reset mode: "daily", "idle", "daily+idle", or "never" (default).
	Mode string `yaml:"mode"`

	// AtHour is the hour (0-23) to reset the session when mode includes "daily".
	AtHour int `yaml:"at_hour"`

	// IdleMinutes is the number of minutes of inactivity before reset when mode includes "idle".
	IdleMinutes int `yaml:"idle_minutes"`
}

type MemoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	MaxLines  int    `yaml:"max_lines"`
	Days      int    `yaml:"days"`
	Scope     string `yaml:"scope"`
}

type HeartbeatConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
	Mode    string `yaml:"mode"`
}

type MemoryFlushConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Threshold int    `yaml:"threshold"`
	Prompt    string `yaml:"prompt"`
}


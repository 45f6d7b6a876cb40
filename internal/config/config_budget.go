package config

// BudgetConfig carries the security-policy-owned token limits: the
// per-session cap that triggers pause-and-renew, and the process-wide
// daily cap shared across all sessions.
type BudgetConfig struct {
	SessionLimit uint64 `yaml:"session_limit"`
	DailyLimit   uint64 `yaml:"daily_limit"`
}

func applyBudgetDefaults(cfg *BudgetConfig) {
	if cfg.SessionLimit == 0 {
		cfg.SessionLimit = 200_000
	}
	if cfg.DailyLimit == 0 {
		cfg.DailyLimit = 2_000_000
	}
}

// SecurityConfig is the human-owned security policy: the egress
// allowlist/blocklist and the executor's resource limits. It backs
// config.toml's "security policy" section per the on-disk layout.
type SecurityConfig struct {
	Egress   EgressConfig   `yaml:"egress"`
	Executor ExecutorConfig `yaml:"executor"`
}

// EgressConfig configures the outbound proxy's domain allowlist/blocklist.
type EgressConfig struct {
	Allowlist      []string `yaml:"allowlist"`
	BlockList      []string `yaml:"block_list"`
	ProxyAddr      string   `yaml:"proxy_addr"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// ExecutorConfig configures the sandbox boundary's resource caps.
type ExecutorConfig struct {
	ContainerImage   string `yaml:"container_image"`
	WorkspaceDir     string `yaml:"workspace_dir"`
	ToolsDir         string `yaml:"tools_dir"`
	MemoryMB         int    `yaml:"memory_mb"`
	CPUShares        int    `yaml:"cpu_shares"`
	PidsLimit        int    `yaml:"pids_limit"`
	CommandTimeoutS  int    `yaml:"command_timeout_secs"`
	OuterGraceSecs   int    `yaml:"outer_grace_secs"`
}

func applyEgressDefaults(cfg *EgressConfig) {
	if cfg.ProxyAddr == "" {
		cfg.ProxyAddr = "127.0.0.1:8910"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 10
	}
}

func applyExecutorDefaults(cfg *ExecutorConfig) {
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = "workspace"
	}
	if cfg.ToolsDir == "" {
		cfg.ToolsDir = "scripts"
	}
	if cfg.MemoryMB == 0 {
		cfg.MemoryMB = 1024
	}
	if cfg.CPUShares == 0 {
		cfg.CPUShares = 1024
	}
	if cfg.PidsLimit == 0 {
		cfg.PidsLimit = 256
	}
	if cfg.CommandTimeoutS == 0 {
		cfg.CommandTimeoutS = 120
	}
	if cfg.OuterGraceSecs == 0 {
		cfg.OuterGraceSecs = 30
	}
}

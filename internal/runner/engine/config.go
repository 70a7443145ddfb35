package engine

import "fmt"

// Limiter modes select how rlimits reach the target program.
const (
	// LimiterShell prefixes the command line with ulimit calls.
	LimiterShell = "shell"
	// LimiterHelper execs the sandbox-init helper, which calls setrlimit and execs the shell.
	LimiterHelper = "helper"
	// LimiterNone applies only the wall-clock ceiling.
	LimiterNone = "none"
)

const (
	defaultShell      = "/bin/bash -lc"
	defaultHelperPath = "sandbox-init"
	defaultPath       = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Config controls process supervision.
type Config struct {
	// Shell is the interpreter command line; the process command is appended as one argument.
	Shell        string   `yaml:"shell"`
	Limiter      string   `yaml:"limiter"`
	HelperPath   string   `yaml:"helperPath"`
	EnableCgroup bool     `yaml:"enableCgroup"`
	CgroupRoot   string   `yaml:"cgroupRoot"`
	Env          []string `yaml:"env"`
}

func (c Config) withDefaults() Config {
	if c.Shell == "" {
		c.Shell = defaultShell
	}
	if c.Limiter == "" {
		c.Limiter = LimiterShell
	}
	if c.HelperPath == "" {
		c.HelperPath = defaultHelperPath
	}
	return c
}

func (c Config) validate() error {
	switch c.Limiter {
	case LimiterShell, LimiterHelper, LimiterNone:
	default:
		return fmt.Errorf("unknown limiter %q", c.Limiter)
	}
	if c.EnableCgroup && c.CgroupRoot == "" {
		return fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	return nil
}

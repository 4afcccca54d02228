package tool

import (
	"flag"

	"github.com/chemora/batchup/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Config {
	var cfg types.Config
	flag.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flag.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	flag.IntVar(&cfg.UsePort, "usePort", 0, "override admin API port")
	flag.StringVar(&cfg.UseEndpoint, "useEndpoint", "", "override upload endpoint base URL")
	flag.StringVar(&cfg.UseTokenEnv, "useTokenEnv", "", "override env var name holding the bearer credential")
	flag.BoolVar(&cfg.SkipNotify, "skipNotify", false, "if true, skip unix socket settle notifications")
	flag.Parse()
	return cfg
}

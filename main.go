package main

import (
	"time"

	"github.com/chemora/batchup/api"
	"github.com/chemora/batchup/api/controllers"
	"github.com/chemora/batchup/api/models"
	"github.com/chemora/batchup/api/notifyhub"
	"github.com/chemora/batchup/notify"
	"github.com/chemora/batchup/tool"
)

func main() {
	cfg := tool.SetFlags()
	tool.InitLogger(cfg.Log)

	appCfg, err := tool.LoadConfig(cfg.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	if cfg.UsePort > 0 {
		appCfg.Port = cfg.UsePort
	}
	if cfg.UseEndpoint != "" {
		appCfg.Endpoint = cfg.UseEndpoint
	}
	if cfg.UseTokenEnv != "" {
		appCfg.TokenEnv = cfg.UseTokenEnv
	}
	if cfg.SkipNotify {
		notify.SetUseNotify(false)
	}
	tool.CurrentConfig = appCfg

	if appCfg.SessionTTLMin > 0 {
		models.SetSessionTTL(time.Duration(appCfg.SessionTTLMin) * time.Minute)
	}

	hub := notifyhub.New()
	controllers.Configure(&appCfg, hub)

	apiServer := api.NewServer(appCfg.Port, hub)
	go func() {
		if err := apiServer.Start(); err != nil {
			tool.DefaultLogger.Fatalf("Admin API server startup failed: %v", err)
		}
	}()

	if tool.BearerToken(&appCfg) == "" {
		tool.DefaultLogger.Warnf("No credential in $%s, uploads go unauthenticated", appCfg.TokenEnv)
	}

	select {}
}

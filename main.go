package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"relaybot/pkg/channels"
	_ "relaybot/pkg/channels/autoload" // 自動註冊 Channels
	"relaybot/pkg/config"
	"relaybot/pkg/conversation"
	"relaybot/pkg/gateway"
	"relaybot/pkg/handler"
	"relaybot/pkg/llm"
	_ "relaybot/pkg/llm/autoload" // 自動註冊 LLM Providers
	"relaybot/pkg/monitor"
	"relaybot/pkg/pipeline"
	"relaybot/pkg/replycache"
	"relaybot/pkg/toggle"
	"relaybot/pkg/translate"
	_ "relaybot/pkg/translate/autoload" // 自動註冊翻譯 Backends

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "relaybot",
		Short:        "Bilingual chat relay between messaging channels and LLM backends",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var appPath, sysPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start all configured channels and relay messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, appPath, sysPath)
		},
	}

	cmd.Flags().StringVar(&appPath, "config", "config.json", "Application config file (channels, llm, translation).")
	cmd.Flags().StringVar(&sysPath, "system", "system.json", "System config file (timeouts, limits, log level).")
	return cmd
}

func serve(ctx context.Context, appPath, sysPath string) error {
	// --- 0. 讀取設定檔 ---
	cfg, sys, err := config.Load(appPath, sysPath)
	if err != nil {
		return err
	}

	// 啟動日誌與監控環境
	monitor.SetupSlog(sys.LogLevel)
	monitor.PrintBanner()

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		return fmt.Errorf("failed to init LLM client: %w", err)
	}

	// --- 1a. 翻譯 Backend（未啟用時為 nil）---
	translator, err := translate.NewFromConfig(cfg.Translation, translate.Deps{LLM: client, System: sys})
	if err != nil {
		return fmt.Errorf("failed to init translator: %w", err)
	}

	// --- 2. 對話與回覆快取 ---
	store := conversation.NewStore(cfg.SystemPrompt, conversation.Options{
		MaxTurns:         sys.MaxTurnsPerConversation,
		MaxConversations: sys.MaxConversations,
	})
	cache := replycache.New(sys.MaxCachedReplies)

	tr := cfg.Translation
	machine := toggle.NewMachine(cache,
		toggle.NewLabels(tr.ToggleLabel, tr.LanguageName(tr.UserLanguage), tr.LanguageName(tr.GenerationLanguage)),
		toggle.Texts{NotFound: cfg.Messages.OriginalNotFound, Invalid: cfg.Messages.InvalidAction},
	)

	p := pipeline.New(pipeline.Deps{
		Store:      store,
		Cache:      cache,
		LLM:        client,
		Toggles:    machine,
		Translator: translator,
	}, pipeline.OptionsFromConfig(cfg, sys))

	slog.Info("Pipeline ready", "translation", p.TranslationEnabled(), "user_language", tr.UserLanguage, "generation_language", tr.GenerationLanguage)

	// --- 3. Gateway 初始化（使用 Builder 模式）---
	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(channels.LoadFromConfig(cfg.Channels, sys)...).
		WithHandler(handler.NewChatHandler(p, machine, cfg, sys)).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	// --- 4. system.json 熱更新（目前只套用 log level）---
	go func() {
		for updated := range config.WatchSystemConfig(ctx, sysPath) {
			monitor.SetLevel(updated.LogLevel)
		}
	}()

	// 阻塞直到收到系統信號
	<-ctx.Done()
	slog.Info("Received shutdown signal. Stopping services...")

	// 執行清理
	gw.StopAll()
	slog.Info("Bye!")
	return nil
}

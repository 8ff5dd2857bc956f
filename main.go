package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"classifieds_ad_publisher/config"
	"classifieds_ad_publisher/generator"
	"classifieds_ad_publisher/metrics"
	"classifieds_ad_publisher/publisher"
	"classifieds_ad_publisher/server"
	"classifieds_ad_publisher/tracing"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config.json")
	serve := flag.Bool("serve", false, "start web server")
	addr := flag.String("addr", "", "http listen address when --serve (overrides config.server_addr)")
	title := flag.String("title", "", "listing title (CLI mode)")
	category := flag.String("category", "", "listing category id (CLI mode)")
	description := flag.String("description", "", "moderate this description instead of generating one (CLI mode)")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := cfg.Log.NewLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *serve {
		if *addr != "" {
			cfg.ServerAddr = *addr
		}
		if err := runServer(cfg, logger); err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if *title == "" {
		fmt.Fprintln(os.Stderr, "--title is required (or use --serve)")
		os.Exit(1)
	}
	if err := runCLI(cfg, logger, *title, *category, *description); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required in server mode")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	m := metrics.New("adform")
	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	writer, err := generator.NewDescriptionWriter(llm, logger.Named("generator"), m)
	if err != nil {
		return err
	}
	mod, err := generator.NewModerator(llm, logger.Named("moderation"), m)
	if err != nil {
		return err
	}

	var store publisher.Store = publisher.NewMemoryStore()
	if cfg.Redis.Address != "" {
		rs, err := publisher.NewRedisStore(ctx, publisher.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	}
	var events publisher.Events
	if cfg.NATS.URL != "" {
		ne, err := publisher.NewNATSEvents(cfg.NATS.URL, cfg.NATS.ConnectTimeout, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer ne.Close()
		events = ne
	}
	pub, err := publisher.New(publisher.Config{
		Currency:         cfg.Publish.Currency,
		SimulatedLatency: cfg.Publish.SimulatedLatency,
	}, store, events, logger.Named("publisher"))
	if err != nil {
		return err
	}

	srv, err := server.New(server.Deps{
		Generator: writer,
		Moderator: mod,
		Listings:  pub,
		JWTSecret: cfg.JWTSecret,
		Logger:    logger.Named("server"),
		Metrics:   m,
	})
	if err != nil {
		return err
	}
	defer srv.Shutdown()

	httpSrv := &http.Server{Addr: cfg.ServerAddr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting web server", zap.String("addr", cfg.ServerAddr), zap.String("llm", cfg.LLM.Provider))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("web server stopped")
	return nil
}

// runCLI generates a description for title/category, or moderates title and
// description when one is given.
func runCLI(cfg *config.Config, logger *zap.Logger, title, category, description string) error {
	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if description != "" {
		mod, err := generator.NewModerator(llm, logger, nil)
		if err != nil {
			return err
		}
		v := mod.Moderate(ctx, title, description)
		logger.Debug("moderation done", zap.Bool("safe", v.Safe))
		if v.Safe {
			fmt.Println("safe")
			return nil
		}
		fmt.Printf("rejected: %s\n", v.Reason)
		return nil
	}

	if category == "" {
		return errors.New("--category is required to generate a description")
	}
	writer, err := generator.NewDescriptionWriter(llm, logger, nil)
	if err != nil {
		return err
	}
	res := writer.GenerateDescription(ctx, title, category)
	fmt.Println(res.Text)
	if res.Fallback {
		return errors.New("description generation failed")
	}
	return nil
}

func buildLLM(cfg *config.Config) (generator.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "mock":
		return generator.MockLLM{}, nil
	case "openai", "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，base_url 已在配置校验时检查。
		return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
			Provider: cfg.LLM.Provider,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Timeout:  cfg.LLM.Timeout,
		})
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okazarov/rss-relay/app/ai"
	"github.com/okazarov/rss-relay/app/api"
	"github.com/okazarov/rss-relay/app/cfg"
	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/fetch"
	"github.com/okazarov/rss-relay/app/filter"
	"github.com/okazarov/rss-relay/app/logstore"
	"github.com/okazarov/rss-relay/app/pipeline"
	"github.com/okazarov/rss-relay/app/poster"
	"github.com/okazarov/rss-relay/app/scheduler"
	"github.com/okazarov/rss-relay/app/sourcecache"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}
	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	log.Printf("Starting rss-relay %s...", appCfg.Version)

	if !appCfg.HasPostingCredentials() {
		log.Fatal("Missing posting API credentials")
	}
	if len(appCfg.Sources) == 0 {
		log.Fatal("No feed sources configured")
	}

	clk := clock.New(appCfg.TZOffsetHours)

	// Durable stores, with empty defaults pre-created.
	store := logstore.NewStore(appCfg.DataDir, clk)
	if err := store.EnsureDefaults(); err != nil {
		log.Fatal("Failed to initialize log store:", err)
	}
	cache := sourcecache.NewCache(appCfg.DataDir, clk)
	sourceURLs := make(map[string]string, len(appCfg.Sources))
	for _, source := range appCfg.Sources {
		sourceURLs[source.Name] = source.URL
	}
	if err := cache.EnsureDefaults(sourceURLs); err != nil {
		log.Fatal("Failed to initialize source cache:", err)
	}

	// Filter rules
	rules := filter.Default()
	if appCfg.FilterRules != "" {
		rules, err = filter.LoadFile(appCfg.FilterRules)
		if err != nil {
			log.Fatal("Failed to load filter rules:", err)
		}
		log.Printf("Loaded filter rules from %s", appCfg.FilterRules)
	}

	// External capabilities
	httpClient := &http.Client{Timeout: 30 * time.Second}
	fetcher := fetch.NewFetcher(httpClient, clk, "rss-relay/"+appCfg.Version)

	aiClient := ai.NewClient(appCfg.AIBaseURL, appCfg.AIAPIKey, appCfg.AIModel,
		appCfg.AIMaxTokens, appCfg.AITemperature)
	if aiClient.Enabled() {
		log.Printf("Generative client initialized (model: %s)", appCfg.AIModel)
	} else {
		log.Printf("Warning: no generative API key, enhancement falls back to truncation")
	}
	enhancer := ai.NewEnhancer(aiClient, appCfg.CharLimit, appCfg.AIRetries)
	assessor := ai.NewAssessor(aiClient, appCfg.AIRetries)

	postClient := poster.NewXClient(appCfg.ConsumerKey, appCfg.ConsumerSecret,
		appCfg.AccessToken, appCfg.AccessTokenSecret)
	authCache := poster.NewAuthCache(appCfg.DataDir, clk)

	runner := pipeline.NewRunner(clk, store, cache, rules, fetcher,
		enhancer, assessor, postClient, authCache)

	sched := scheduler.NewScheduler(runner, clk)

	if appCfg.RunOnce {
		log.Println("Running single pipeline pass...")
		if err := sched.TriggerRun(); err != nil {
			log.Fatal("Pipeline run failed:", err)
		}
		return
	}

	if err := sched.Start(appCfg.Schedule); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer sched.Stop()

	// Optional ops HTTP server
	var httpServer *http.Server
	serverErrChan := make(chan error, 1)
	if appCfg.Port != "" {
		handler := api.NewHandler(store, sched, clk)
		server := api.NewServer(handler, appCfg.APIAccessKey)

		httpServer = &http.Server{
			Addr:         ":" + appCfg.Port,
			Handler:      server,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			log.Printf("Starting ops server on port %s", appCfg.Port)
			log.Printf("  Health:   http://localhost:%s/health", appCfg.Port)
			log.Printf("  Stats:    http://localhost:%s/stats", appCfg.Port)
			log.Printf("  Posted:   http://localhost:%s/posted", appCfg.Port)
			log.Printf("  Skipped:  http://localhost:%s/skipped", appCfg.Port)
			if appCfg.APIAccessKey != "" {
				log.Printf("  Run:      http://localhost:%s/api/run (POST, requires API key)", appCfg.Port)
			}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("rss-relay started (schedule: %s, dry_run: %v)", appCfg.Schedule, appCfg.DryRun)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down gracefully...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		} else {
			log.Println("HTTP server stopped")
		}
	}

	log.Println("rss-relay shutdown complete")
}

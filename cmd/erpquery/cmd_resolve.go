// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/erpquery/backend"
	"github.com/AleutianAI/erpquery/cache"
	"github.com/AleutianAI/erpquery/config"
	"github.com/AleutianAI/erpquery/resolve"
)

func runResolveCommand(_ *cobra.Command, args []string) {
	if odooDatabase == "" || odooUsername == "" {
		log.Fatal("missing Odoo connection settings: set --db and --user (or ODOO_DB / ODOO_USER)")
	}

	var limiter *rate.Limiter
	if requestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestRate), 1)
	}

	client := backend.NewOdooClient(backend.OdooOptions{
		URL:      odooURL,
		Database: odooDatabase,
		Username: odooUsername,
		Password: odooPassword,
		Limiter:  limiter,
	})

	registry, err := config.LoadModelRegistry()
	if err != nil {
		log.Fatalf("load model registry: %v", err)
	}

	var store cache.Store
	if cacheDir != "" {
		db, err := badger.Open(badger.DefaultOptions(cacheDir).WithLogger(nil))
		if err != nil {
			log.Fatalf("open cache directory %q: %v", cacheDir, err)
		}
		defer db.Close()
		store, err = cache.NewBadgerStore(db)
		if err != nil {
			log.Fatalf("cache store setup failed: %v", err)
		}
	}

	resultCache, err := cache.New(cache.Options{Store: store, TTLFor: registry.TTL})
	if err != nil {
		log.Fatalf("cache setup failed: %v", err)
	}

	engine, err := resolve.New(resolve.Options{
		Backend:  client,
		Registry: registry,
		Cache:    resultCache,
	})
	if err != nil {
		log.Fatalf("engine setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if !interactive {
		if len(args) == 0 {
			log.Fatal("usage: erpquery resolve <query>  (or --interactive)")
		}
		printResult(ctx, engine, strings.Join(args, " "))
		return
	}

	if len(args) > 0 {
		printResult(ctx, engine, strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit", "q":
			printStats(engine)
			return
		case "stats":
			printStats(engine)
			continue
		}
		printResult(ctx, engine, line)
		if ctx.Err() != nil {
			return
		}
	}
	printStats(engine)
}

func printResult(ctx context.Context, engine *resolve.Engine, text string) {
	res := engine.Resolve(ctx, text)
	if jsonOutput {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			log.Fatalf("encode result: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Println(resolve.Format(res))
	slog.Debug("resolution detail",
		slog.String("method", string(res.Method)),
		slog.Bool("cached", res.Cached),
		slog.Duration("took", res.Duration),
	)
}

func printStats(engine *resolve.Engine) {
	s := engine.Stats()
	fmt.Printf("\n%d queries: %d exact (%.0f%%), %d template (%.0f%%), %d generic (%.0f%%), %d unresolved (%.0f%%)\n",
		s.TotalQueries,
		s.ExactHits, s.ExactRate,
		s.TemplateHits, s.TemplateRate,
		s.GenericHits, s.GenericRate,
		s.Unresolved, s.UnresolvedRate,
	)
	fmt.Printf("cache hits: %d (%.0f%%), validation rejections: %d, backend errors: %d\n",
		s.CacheHits, s.CacheHitRate, s.ValidationRejections, s.BackendErrors)
}

func runModelsCommand(_ *cobra.Command, _ []string) {
	registry, err := config.LoadModelRegistry()
	if err != nil {
		log.Fatalf("load model registry: %v", err)
	}
	for _, m := range registry.Security.AllowedModels {
		line := m
		if mc, ok := registry.Config(m); ok {
			line += "  (" + strings.Join(mc.Keywords, ", ") + ")"
		}
		fmt.Println(line)
	}
}

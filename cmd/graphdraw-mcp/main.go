// Command graphdraw-mcp exposes a graphdraw-d editing session to MCP clients
// over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/linem-davton/graphdraw/pkg/client"
	"github.com/linem-davton/graphdraw/pkg/config"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/mcp"
	"github.com/linem-davton/graphdraw/pkg/store"
)

const (
	readyAttempts = 8
	readyTimeout  = 30 * time.Second
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flagSet := flag.NewFlagSet("graphdraw-mcp", flag.ContinueOnError)
	apiURL := flagSet.String("api", config.EnvOrDefault("API", client.DefaultEndpoint), "graphdraw-d base URL")
	sessionID := flagSet.String("session", config.Env("SESSION"), "attach to an existing session instead of creating one")
	key := flagSet.String("key", config.EnvOrDefault("KEY", store.DefaultKey), "storage key for a created session")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// stdout carries the protocol, so logs go to stderr.
	logger := logging.New(os.Stderr, logging.ConfigFromEnv())

	srv := mcp.NewServer(*apiURL, mcp.Options{SessionID: *sessionID, Key: *key})

	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	err := srv.Client().WaitReady(ctx, client.DefaultBackoff(), readyAttempts)
	cancel()
	if err != nil {
		logger.Error("Daemon not reachable", "api", *apiURL, "error", err)
		os.Exit(1)
	}
	logger.Info("MCP server starting", "api", *apiURL, "session", *sessionID, "key", *key)

	if err := srv.Serve(); err != nil {
		logger.Error("MCP server stopped", "error", err)
		os.Exit(1)
	}
}

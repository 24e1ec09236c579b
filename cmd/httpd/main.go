// Copyright 2024 The httpfront Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

// Command httpd is the CLI entrypoint: server --port <int> --settings <key>.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zumaad/my-http-server/config"
	"github.com/zumaad/my-http-server/dispatch"
	"github.com/zumaad/my-http-server/httpfront"

	_ "github.com/zumaad/my-http-server/handlers/healthcheck"
	_ "github.com/zumaad/my-http-server/handlers/loadbalance"
	_ "github.com/zumaad/my-http-server/handlers/proxy"
	_ "github.com/zumaad/my-http-server/handlers/static"
)

var (
	flagPort        int
	flagSettingsKey string
	flagConfigPath  string
	flagModel       string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "httpd",
		Short: "A pluggable HTTP/1.1 front end: static files, reverse proxy, and load balancing.",
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&flagPort, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVarP(&flagSettingsKey, "settings", "s", "", "settings key to load from the config file (required)")
	cmd.Flags().StringVar(&flagConfigPath, "config", "settings.yaml", "path to the settings file")
	cmd.Flags().StringVar(&flagModel, "model", dispatch.ModelWorkerPool,
		fmt.Sprintf("execution model: %s, %s, or %s", dispatch.ModelEventLoop, dispatch.ModelWorkerPool, dispatch.ModelCoop))
	cmd.MarkFlagRequired("settings") //nolint:errcheck
	return cmd
}

// runServe wires settings, handlers, and the chosen execution model
// together, then blocks until SIGINT/SIGTERM, exiting 0 on a normal
// shutdown.
func runServe(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("httpd: building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	httpfront.ConfigureLogging(logger)

	settingsFile, err := config.Load(flagConfigPath)
	if err != nil {
		return err // fatal: bad config path/format
	}
	specs, err := settingsFile.Select(flagSettingsKey)
	if err != nil {
		return err // fatal: unknown settings key
	}

	ctx := httpfront.NewContext()
	handlers, err := httpfront.NewHandlerManager(specs, ctx).Build()
	if err != nil {
		return err // fatal: unknown handler type
	}

	pipeline := &dispatch.Pipeline{Handlers: handlers, Ctx: ctx}
	server, err := dispatch.NewServer(flagModel, flagPort, pipeline)
	if err != nil {
		return err // fatal: bind failure or unknown model
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		server.Close() //nolint:errcheck
	}()

	logger.Info("listening",
		zap.Int("port", flagPort),
		zap.String("settings", flagSettingsKey),
		zap.String("model", flagModel),
	)

	err = server.Run()
	ctx.Shutdown()
	return err
}

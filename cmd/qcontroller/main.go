// Command qcontroller reads a batch job document (§6) from stdin or a
// file argument, executes it against a back-end, and prints the
// resulting Result document to stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/qcontroller/internal/config"
	"github.com/aristath/qcontroller/internal/controller"
	"github.com/aristath/qcontroller/internal/fabric"
	"github.com/aristath/qcontroller/internal/history"
	"github.com/aristath/qcontroller/internal/obslog"
)

// main wires the controller and runs it once against stdin/a file, or
// in -watch DIR mode, on a cron schedule against every new job file that
// appears in DIR.
func main() {
	env := config.LoadEnv()
	log := obslog.New(obslog.Config{Level: env.LogLevel, Pretty: env.Pretty})

	store, err := history.Open(env.HistoryDSN)
	if err != nil {
		log.Warn().Err(err).Msg("history store disabled")
	}
	defer store.Close()

	ctrl := controller.New(newExampleBackend(), nil, nil, fabric.Local{}, log)

	watchDir := parseWatchFlag(os.Args[1:])
	if watchDir != "" {
		runWatchMode(ctrl, store, watchDir, log)
		return
	}

	blob, err := readJobInput(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read job input")
	}

	res := ctrl.ExecuteBlob(blob)
	if err := store.Record(ctrl.Fabric.Rank(), res); err != nil {
		log.Warn().Err(err).Msg("failed to record run history")
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode result")
	}
	fmt.Println(string(out))
}

func readJobInput(args []string) ([]byte, error) {
	if len(args) > 0 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

func parseWatchFlag(args []string) string {
	for i, a := range args {
		if a == "-watch" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// runWatchMode polls dir every minute via a cron schedule, executing any
// *.json file found and removing it afterwards, until SIGINT/SIGTERM.
func runWatchMode(ctrl *controller.Controller, store *history.Store, dir string, log zerolog.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to list watch directory")
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			path := dir + "/" + e.Name()
			blob, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			res := ctrl.ExecuteBlob(blob)
			if err := store.Record(ctrl.Fabric.Rank(), res); err != nil {
				log.Warn().Err(err).Msg("failed to record run history")
			}
			log.Info().Str("job", res.JobID).Str("status", string(res.Status)).Msg("batch executed")
			os.Remove(path)
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule watch job")
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ssomangili/medextract/internal/capture"
	"github.com/ssomangili/medextract/internal/config"
	"github.com/ssomangili/medextract/internal/extract"
	"github.com/ssomangili/medextract/internal/prompt"
	"github.com/ssomangili/medextract/internal/provider"
	"github.com/ssomangili/medextract/internal/schema"
	"github.com/ssomangili/medextract/internal/session"
	"github.com/ssomangili/medextract/internal/synth"
	"github.com/ssomangili/medextract/internal/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
	if os.Getenv("MEDX_DEBUG") != "" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	switch os.Args[1] {
	case "generate":
		count := intFlag(os.Args[2:], "--count", 1)
		seed := int64(intFlag(os.Args[2:], "--seed", int(time.Now().UnixNano())))
		gen := synth.New(seed, time.Now())
		patients := gen.Patients(count)
		var out any = patients
		if count == 1 {
			out = patients[0]
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fatal("encode: %v", err)
		}
		fmt.Println(string(data))

	case "validate":
		if len(os.Args) < 3 {
			fatal("usage: medx validate <patient.json>")
		}
		path := os.Args[2]
		data, err := os.ReadFile(path)
		if err != nil {
			fatal("read %s: %v", path, err)
		}
		rec, err := schema.Validate(data)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("valid: %s (%s, %d timeline events)\n",
			rec.PatientID, rec.Demographics.Name, len(rec.Timeline))

	case "ask":
		if len(os.Args) < 4 {
			fatal("usage: medx ask <patient.json> <question>")
		}
		ask(cfg, logger, os.Args[2], os.Args[3])

	case "watch":
		if len(os.Args) < 3 {
			fatal("usage: medx watch <patient.json>")
		}
		path := os.Args[2]
		fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", path)
		err := watch.Watch(context.Background(), path, func(rec *schema.PatientRecord, err error) {
			stamp := time.Now().Format("15:04:05")
			if err != nil {
				fmt.Printf("[%s] invalid: %v\n", stamp, err)
				return
			}
			fmt.Printf("[%s] valid: %s (%d timeline events)\n", stamp, rec.PatientID, len(rec.Timeline))
		})
		if err != nil && err != context.Canceled {
			fatal("watch: %v", err)
		}

	case "init":
		path, err := config.WriteDefault()
		if err != nil {
			fatal("init: %v", err)
		}
		fmt.Printf("config: %s\n", path)

	case "version":
		fmt.Printf("medx v%s (medextract)\n", version)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func ask(cfg config.Config, logger zerolog.Logger, path, question string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read %s: %v", path, err)
	}
	rec, err := schema.Validate(data)
	if err != nil {
		fatal("%v", err)
	}

	store, err := session.Open()
	if err != nil {
		fatal("session: %v", err)
	}
	defer store.Close()
	if err := store.PutPatient(rec); err != nil {
		fatal("session: %v", err)
	}

	model, err := provider.New(provider.Options{
		Provider: cfg.Provider.Name,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.APIKey(),
		BaseURL:  cfg.Provider.BaseURL,
		Timeout:  time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Logger:   logger,
	})
	if err != nil {
		fatal("provider: %v", err)
	}

	ex := extract.New(model,
		extract.WithAttempts(cfg.Extract.MaxAttempts),
		extract.WithRetryWait(time.Duration(cfg.Extract.RetryWaitMS)*time.Millisecond),
		extract.WithLogger(logger),
	)

	result := ex.Extract(context.Background(), rec, question)

	runID := uuid.NewString()
	if err := store.LogRun(session.Run{
		RunID:      runID,
		PatientID:  rec.PatientID,
		Question:   question,
		Answer:     result.Answer,
		Confidence: result.Confidence,
		Error:      result.Error,
	}); err != nil {
		logger.Warn().Err(err).Msg("could not log run")
	}

	if cfg.Capture.Enabled {
		// Rebuild the prompt for the bundle; the builder is deterministic,
		// so this matches what the model saw up to the wall-clock age.
		promptText, _ := prompt.Builder{}.Build(rec, question)
		bundlePath, err := capture.Write(cfg.Capture.Dir, capture.Bundle{
			RunID:       runID,
			PatientID:   rec.PatientID,
			Question:    question,
			Prompt:      promptText,
			RawResponse: result.RawResponse,
			Result:      result,
			CreatedAt:   time.Now().UTC(),
		}, cfg.Capture.Compress)
		if err != nil {
			logger.Warn().Err(err).Msg("could not write capture bundle")
		} else {
			logger.Info().Str("path", bundlePath).Msg("capture bundle written")
		}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatal("encode result: %v", err)
	}
	fmt.Println(string(out))
	if !result.Succeeded() {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `medx v%s — medical timeline extraction

Usage:
  medx generate [--count n] [--seed n]   Generate synthetic patient JSON
  medx validate <patient.json>           Validate a patient record
  medx ask <patient.json> <question>     Run an extraction
  medx watch <patient.json>              Re-validate on every file change
  medx init                              Write a default config file
  medx version                           Print version
  medx help                              Show this help

Configuration: ~/.config/medextract/config.toml
Set MEDX_DEBUG=1 for verbose logging.
`, version)
}

func intFlag(args []string, flag string, def int) int {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			if n, err := strconv.Atoi(args[i+1]); err == nil {
				return n
			}
		}
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "medx: "+format+"\n", args...)
	os.Exit(1)
}

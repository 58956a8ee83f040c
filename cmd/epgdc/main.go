// Command epgdc assembles the EPG data carousel for a DAB multiplex: it
// resolves SPI sources over RadioDNS, normalizes service and schedule
// data, and writes the packaged carousel to a single output file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/renameio/v2"

	"github.com/dabtools/epgdc/internal/aggregate"
	"github.com/dabtools/epgdc/internal/assemble"
	"github.com/dabtools/epgdc/internal/config"
	"github.com/dabtools/epgdc/internal/fetch"
	"github.com/dabtools/epgdc/internal/log"
	"github.com/dabtools/epgdc/internal/mot"
	"github.com/dabtools/epgdc/internal/mux"
	"github.com/dabtools/epgdc/internal/radiodns"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("epgdc", flag.ExitOnError)
	output := fs.String("o", "output.dat", "output file path")
	verbose := fs.Bool("X", false, "verbose logging")
	days := fs.Int("d", 2, "number of days of PI to fetch")
	packetSize := fs.Int("p", 96, "transport packet size in bytes")
	address := fs.Int("a", 1, "transport packet address")
	directoryOnly := fs.Bool("D", false, "emit directory fragments instead of transport packets")
	credsPath := fs.String("c", "", "CSV file mapping FQDN to access credential")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: epgdc [flags] <multiplex-config>\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	muxPath := fs.Arg(0)

	envCfg, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := envCfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log.Configure(log.Config{Level: level, Service: "epgdc"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runID := fmt.Sprintf("%x", time.Now().UnixNano())
	ctx = log.ContextWithRunID(ctx, runID)

	var creds fetch.Credentials
	if *credsPath != "" {
		creds, err = fetch.LoadCredentialsCSV(*credsPath)
		if err != nil {
			logger.Error().Err(err).Str("event", "credentials.load_failed").Msg("cannot load credentials")
			return 1
		}
		logger.Info().
			Str("event", "credentials.loaded").
			Int("domains", len(creds)).
			Msg("access credentials loaded")
	}

	m, err := mux.Load(muxPath)
	if err != nil {
		logger.Error().Err(err).Str("event", "mux.load_failed").Str("path", muxPath).Msg("cannot load multiplex configuration")
		return 1
	}
	ecc, eid, label, shortLabel := m.EnsembleIdentity()
	logger.Info().
		Str("event", "run.start").
		Str("ensemble", fmt.Sprintf("%02x.%04x", ecc, eid)).
		Str("label", label).
		Int("services", len(m.Services)).
		Int("days", *days).
		Msg("starting carousel assembly")

	resolver, err := radiodns.New(envCfg.DNSRoot)
	if err != nil {
		logger.Error().Err(err).Str("event", "resolver.init_failed").Msg("cannot initialise resolver")
		return 1
	}
	discoveries := resolver.Resolve(ctx, m)
	if len(discoveries) == 0 {
		logger.Error().Str("event", "run.no_sources").Msg("no SPI sources discovered for any bearer")
		return 1
	}

	fetcher := fetch.New(envCfg.Timeout(), creds)
	agg := aggregate.New(aggregate.Config{Days: *days, ECC: ecc, EID: eid}, fetcher)
	result := agg.Run(ctx, discoveries)

	objects, err := assemble.Assemble(ctx, result.Objects, result.Services, assemble.Ensemble{
		ECC:        ecc,
		EID:        eid,
		Label:      label,
		ShortLabel: shortLabel,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "run.failed").Msg("nothing to emit, no output written")
		return 1
	}

	enc := &mot.Encoder{}
	groups, err := enc.EncodeDirectory(objects)
	if err != nil {
		logger.Error().Err(err).Str("event", "encode.failed").Msg("directory encoding failed")
		return 1
	}

	var payload []byte
	if *directoryOnly {
		payload = mot.FlattenGroups(groups)
	} else {
		payload, err = mot.EncodePackets(groups, uint16(*address), *packetSize)
		if err != nil {
			logger.Error().Err(err).Str("event", "encode.failed").Msg("packet encoding failed")
			return 1
		}
	}

	if err := writeOutput(*output, payload); err != nil {
		logger.Error().Err(err).Str("event", "output.write_failed").Str("path", *output).Msg("cannot write output file")
		return 1
	}

	logger.Info().
		Str("event", "run.success").
		Str("path", *output).
		Int("objects", len(objects)).
		Int("data_groups", len(groups)).
		Int("bytes", len(payload)).
		Msg("carousel written")
	return 0
}

// writeOutput writes the bitstream atomically: fsync before rename so a
// crash never leaves a truncated carousel behind.
func writeOutput(path string, payload []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending output: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()
	if _, err := pending.Write(payload); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace output: %w", err)
	}
	return nil
}

// Command psyche-server hosts the centralized-protocol variant of the
// coordinator kernel over TCP.
//
// Usage:
//
//	psyche-server [flags]
package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/log"
	"github.com/psyche-network/psyche/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments without the program name so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	l := log.Module("cmd.psyche-server")

	coord, err := coordinator.New(cfg.runID, cfg.runConfig, cfg.model, cfg.whitelistCap, cfg.clientsCap)
	if err != nil {
		l.Error("failed to create coordinator", "err", err)
		return 1
	}
	if err := coord.Resume(time.Now().Unix()); err != nil {
		l.Error("failed to start run", "err", err)
		return 1
	}

	srv, err := server.New(server.Config{TickInterval: cfg.tickInterval}, coord)
	if err != nil {
		l.Error("failed to create server", "err", err)
		return 1
	}

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		l.Error("failed to listen", "addr", cfg.listenAddr, "err", err)
		return 1
	}

	l.Info("listening", "addr", cfg.listenAddr, "run_id", cfg.runID)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		l.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := srv.Serve(ctx, ln, randomSeed); err != nil {
		l.Error("server stopped", "err", err)
		return 1
	}
	l.Info("shutdown complete")
	return 0
}

// randomSeed supplies each tick's protocol-level random seed. A zero
// return defers to the kernel's own time+height derivation
// (coordinator.deriveRoundSeed); this reads fresh entropy instead so
// concurrently-run servers don't derive identical round seeds from
// coincidentally equal tick timestamps.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

type serverConfig struct {
	listenAddr   string
	runID        string
	tickInterval time.Duration
	whitelistCap int
	clientsCap   int
	runConfig    coordinator.Config
	model        coordinator.Model
}

func parseFlags(args []string) (serverConfig, bool, int) {
	var cfg serverConfig
	var checkpointSource string
	var checkpointRef string
	var architecture string
	var dataType string
	var maxSeqLen uint
	var verificationPercent uint

	fs := flag.NewFlagSet("psyche-server", flag.ContinueOnError)
	fs.StringVar(&cfg.listenAddr, "listen-addr", "127.0.0.1:20331", "TCP listen address")
	fs.StringVar(&cfg.runID, "run-id", "", "run identifier")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", 2*time.Second, "coordinator tick cadence")
	fs.IntVar(&cfg.whitelistCap, "whitelist-cap", 256, "max whitelisted wallets")
	fs.IntVar(&cfg.clientsCap, "clients-cap", 256, "max tracked clients")

	fs.Uint64Var(&cfg.runConfig.MinClients, "min-clients", 1, "minimum active clients to run")
	fs.Uint64Var(&cfg.runConfig.MaxClients, "max-clients", 256, "maximum active clients")
	fs.Uint64Var(&cfg.runConfig.InitMinClients, "init-min-clients", 1, "minimum clients to leave WaitingForMembers")
	fs.Uint64Var(&cfg.runConfig.WarmupTime, "warmup-time", 30, "warmup duration, seconds")
	fs.Uint64Var(&cfg.runConfig.CooldownTime, "cooldown-time", 30, "cooldown duration, seconds")
	fs.Uint64Var(&cfg.runConfig.MaxRoundTrainTime, "max-round-train-time", 300, "max RoundTrain duration, seconds")
	var witnessNodes uint
	fs.UintVar(&witnessNodes, "witness-nodes", 8, "witness roster size")
	fs.UintVar(&verificationPercent, "verification-percent", 20, "percent of non-tie-breaker clients classified Verifier")
	var witnessQuorum uint
	fs.UintVar(&witnessQuorum, "witness-quorum", 4, "witnesses required to early-close a round")
	var tieBreakerTasks uint
	fs.UintVar(&tieBreakerTasks, "tie-breaker-tasks", 0, "tie-breaker roster size, stamped into every round")
	var batchesPerRound uint
	fs.UintVar(&batchesPerRound, "batches-per-round", 8, "batches assigned per round")
	var dataIndiciesPerBatch uint
	fs.UintVar(&dataIndiciesPerBatch, "data-indicies-per-batch", 1024, "data indices per batch")
	var roundsPerEpoch uint
	fs.UintVar(&roundsPerEpoch, "rounds-per-epoch", 16, "rounds per epoch")
	var totalSteps uint
	fs.UintVar(&totalSteps, "total-steps", 10000, "total training steps")
	var witnessBloomSize uint
	fs.UintVar(&witnessBloomSize, "witness-bloom-size", 1<<16, "witness Bloom filter bit count")
	fs.Uint64Var(&cfg.runConfig.DataShuffleSeed, "data-shuffle-seed", 0, "fixed data shuffle seed (0 = derive per round)")

	fs.StringVar(&architecture, "model-architecture", "llama", "model architecture name")
	fs.UintVar(&maxSeqLen, "model-max-seq-len", 2048, "model max sequence length")
	fs.StringVar(&dataType, "model-data-type", "bf16", "model parameter data type")
	fs.StringVar(&checkpointSource, "checkpoint-source", "hub", "initial checkpoint source: hub, p2p, disk")
	fs.StringVar(&checkpointRef, "checkpoint-ref", "", "initial checkpoint reference (hub repo id or disk path)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cfg, true, 2
	}

	cfg.runConfig.WitnessNodes = uint16(witnessNodes)
	cfg.runConfig.VerificationPercent = uint8(verificationPercent)
	cfg.runConfig.WitnessQuorum = uint32(witnessQuorum)
	cfg.runConfig.TieBreakerTasks = uint16(tieBreakerTasks)
	cfg.runConfig.BatchesPerRound = uint16(batchesPerRound)
	cfg.runConfig.DataIndiciesPerBatch = uint32(dataIndiciesPerBatch)
	cfg.runConfig.RoundsPerEpoch = uint16(roundsPerEpoch)
	cfg.runConfig.TotalSteps = uint32(totalSteps)
	cfg.runConfig.WitnessBloomSize = uint32(witnessBloomSize)

	cfg.model = coordinator.Model{LLM: &coordinator.LLMModel{
		Architecture: architecture,
		MaxSeqLen:    uint32(maxSeqLen),
		DataType:     dataType,
		Checkpoint: coordinator.Checkpoint{
			Source: parseCheckpointSource(checkpointSource),
			Ref:    checkpointRef,
		},
	}}

	if cfg.runID == "" {
		fmt.Fprintln(os.Stderr, "error: --run-id is required")
		return cfg, true, 2
	}

	return cfg, false, 0
}

func parseCheckpointSource(s string) coordinator.CheckpointSource {
	switch s {
	case "p2p":
		return coordinator.CheckpointP2P
	case "disk":
		return coordinator.CheckpointDisk
	default:
		return coordinator.CheckpointHub
	}
}

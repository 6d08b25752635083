package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psyche-network/psyche/client"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/identity"
	"github.com/psyche-network/psyche/log"
	"github.com/psyche-network/psyche/p2p"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/watcher"
	"github.com/psyche-network/psyche/wire"
)

// trainConfig holds `train`'s flags. Flags governing the actual numerical
// backend (data/tensor parallelism, micro batch size, eval tasks, hub
// repo, W&B, TUI) are accepted for compatibility and forwarded to log
// context, since the trainer itself runs as an external process.
type trainConfig struct {
	runID             string
	serverAddr        string
	identitySecretKey string
	bindP2PPort       int
	dataParallelism   int
	tensorParallelism int
	microBatchSize    int
	evalTasks         string
	checkpointDir     string
	hubRepo           string
	wandbProject      string
	wandbEntity       string
	tui               bool

	// hubToken and wandbAPIKey come from the environment, never from
	// flags, so the secrets stay out of shell history and process lists.
	hubToken    string
	wandbAPIKey string
}

// Environment variables consumed when set.
const (
	envHubToken    = "HF_TOKEN"
	envWandbAPIKey = "WANDB_API_KEY"
)

func parseTrainFlags(args []string) (trainConfig, bool, int) {
	var cfg trainConfig
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.StringVar(&cfg.runID, "run-id", "", "run identifier to join")
	fs.StringVar(&cfg.serverAddr, "server-addr", "", "centralized server host:port")
	fs.StringVar(&cfg.identitySecretKey, "identity-secret-key", "", "path to OpenSSH-encoded identity key")
	fs.IntVar(&cfg.bindP2PPort, "bind-p2p-port", 0, "local P2P listening port")
	fs.IntVar(&cfg.dataParallelism, "data-parallelism", 1, "data-parallel shard count")
	fs.IntVar(&cfg.tensorParallelism, "tensor-parallelism", 1, "tensor-parallel shard count")
	fs.IntVar(&cfg.microBatchSize, "micro-batch-size", 1, "micro batch size")
	fs.StringVar(&cfg.evalTasks, "eval-tasks", "", "comma-separated eval task names")
	fs.StringVar(&cfg.checkpointDir, "checkpoint-dir", "", "local checkpoint directory")
	fs.StringVar(&cfg.hubRepo, "hub-repo", "", "HuggingFace Hub repo id for checkpoints")
	fs.StringVar(&cfg.wandbProject, "wandb-project", "", "Weights & Biases project")
	fs.StringVar(&cfg.wandbEntity, "wandb-entity", "", "Weights & Biases entity")
	fs.BoolVar(&cfg.tui, "tui", false, "enable the terminal UI")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cfg, true, 2
	}
	cfg.hubToken = os.Getenv(envHubToken)
	cfg.wandbAPIKey = os.Getenv(envWandbAPIKey)
	return cfg, false, 0
}

func (c trainConfig) check() error {
	if c.runID == "" {
		return fmt.Errorf("--run-id is required")
	}
	if c.serverAddr == "" {
		return fmt.Errorf("--server-addr is required")
	}
	if c.identitySecretKey == "" {
		return fmt.Errorf("--identity-secret-key is required")
	}
	return nil
}

func runTrain(args []string) int {
	cfg, exit, code := parseTrainFlags(args)
	if exit {
		return code
	}
	if err := cfg.check(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	l := log.Module("cmd.psyche-client")

	walletPriv, err := identity.Resolve(cfg.identitySecretKey)
	if err != nil {
		l.Error("failed to resolve identity", "err", err)
		return 1
	}
	_, p2pPriv, err := crypto.GenerateKey()
	if err != nil {
		l.Error("failed to generate p2p session key", "err", err)
		return 1
	}

	l.Info("connecting", "server", cfg.serverAddr, "run_id", cfg.runID,
		"data_parallelism", cfg.dataParallelism, "tensor_parallelism", cfg.tensorParallelism,
		"micro_batch_size", cfg.microBatchSize, "eval_tasks", cfg.evalTasks,
		"hub_repo", cfg.hubRepo, "checkpoint_dir", cfg.checkpointDir, "tui", cfg.tui,
		"wandb_project", cfg.wandbProject, "wandb_entity", cfg.wandbEntity,
		"hub_token_set", cfg.hubToken != "", "wandb_api_key_set", cfg.wandbAPIKey != "")

	sess, err := dialServer(cfg.serverAddr, walletPriv, p2pPriv)
	if err != nil {
		l.Error("failed to connect", "err", err)
		return 1
	}
	defer sess.Close()

	l.Info("identity resolved", "wallet", walletPriv.Public())

	if err := sess.Send(wire.ClientMessage{Join: &wire.JoinMessage{RunID: cfg.runID}}); err != nil {
		l.Error("failed to send join", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		l.Info("shutting down")
		cancel()
	}()

	runtimeCfg := client.Config{
		RunID:                          cfg.runID,
		MaxConcurrentParameterRequests: int64(cfg.dataParallelism),
		WitnessBloomSize:               1024,
		TrainTimeout:                   time.Minute,
		CheckpointDir:                  cfg.checkpointDir,
	}
	identityId := types.ClientId{Wallet: walletPriv.Public(), P2P: p2pPriv.Public()}
	rt := client.NewRuntime(runtimeCfg, identityId, walletPriv, unconfiguredBackend{}, unconfiguredBackend{}, noopBroadcaster{})
	rt.WithDownloadManager(p2p.NewDownloadManager(unconfiguredFetcher{}, int64(cfg.dataParallelism)))
	rt.WithWitnessSink(sessionWitnessSink{sess: sess})

	src := pumpServerFrames(ctx, sess)
	w := watcher.New(src)
	err = w.Run(ctx, func(prev, cur watcher.Snapshot) {
		l.Info("run state transition",
			"from", prev.Coordinator.RunState, "to", cur.Coordinator.RunState,
			"epoch", cur.Coordinator.Progress.Epoch, "step", cur.Coordinator.Progress.Step)
		rt.OnTransition(ctx, prev, cur)
	})
	if err != nil && ctx.Err() == nil {
		l.Error("watcher stopped", "err", err)
		return 1
	}
	return 0
}

// Package main is the wallet engine's composition root, grounded on
// the teacher's cmd/kcn/main.go shape: a urfave/cli.App wired up in
// init(), with flags resolved, the wallet started, and teardown
// deferred, all inside the app.Action function.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/shieldcoin/walletcore/chainsync"
	"github.com/shieldcoin/walletcore/noteenc"
	"github.com/shieldcoin/walletcore/wallet"
	"github.com/shieldcoin/walletcore/walletconfig"
	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/walletevent"
	"github.com/shieldcoin/walletcore/walletlog"
	"github.com/shieldcoin/walletcore/wallettypes"
	"github.com/shieldcoin/walletcore/workerpool"
)

var logger = walletlog.NewModuleLogger(walletlog.ModuleWallet)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML wallet engine config file",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Directory for the leveldb-backed WalletDB",
		Value: "./walletdata",
	}
	agentsFlag = cli.IntFlag{
		Name:  "agents",
		Usage: "Number of decrypt/prove worker goroutines",
		Value: 4,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "walletd"
	app.Usage = "Shielded wallet engine daemon"
	app.Flags = []cli.Flag{configFlag, dataDirFlag, agentsFlag}
	app.Action = run
}

func run(ctx *cli.Context) error {
	cfg := walletconfig.Defaults()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := walletconfig.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if dir := ctx.String(dataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}

	db, err := walletdb.OpenLevelDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	codec := noteenc.DeterministicCodec{}
	pool := workerpool.New(codec, codec, ctx.Int(agentsFlag.Name))
	defer pool.Stop()

	// The real Chain/MemPool live outside this module (spec.md §1);
	// this demo wiring runs against an in-process MemChain seeded with
	// just a genesis block so `walletd` is runnable standalone.
	var genesis wallettypes.Hash
	genesis[0] = 1
	chain := chainsync.NewMemChain(genesis, chainsync.AcceptAllVerifier{})

	bus := walletevent.NewBus()

	w, err := wallet.Open(cfg, db, chain, pool, bus)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(runCtx)
	defer w.Stop()

	logger.Info("walletd started", "datadir", cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("walletd shutting down")
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

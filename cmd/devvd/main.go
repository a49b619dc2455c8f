// Command devvd runs one shard (T1 or T2) validator process: it loads a key
// ring, wires the three worker pools described in §4 behind an in-process
// bus, and drives them until told to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"devv.network/node/internal/blockchain"
	"devv.network/node/internal/bus"
	"devv.network/node/internal/consensusworker"
	"devv.network/node/internal/internetworker"
	"devv.network/node/internal/keyring"
	"devv.network/node/internal/logging"
	"devv.network/node/internal/nodeconfig"
	"devv.network/node/internal/primitives"
	"devv.network/node/internal/repeater"
	"devv.network/node/internal/txpool"
	"devv.network/node/internal/validatorworker"
	"devv.network/node/internal/workerpool"
)

var log = logging.Logger("MAIN")

// node bundles every long-lived component a running devvd process owns, so
// main can start and stop it as one unit.
type node struct {
	validatorPool *workerpool.Pool[bus.Message]
	consensusPool *workerpool.Pool[bus.Message]
	internetPool  *workerpool.Pool[bus.Message]
	loopback      *http.Server
	archive       *repeater.Repeater
}

// walletAddresses reads every wallet address this key ring holds, the
// shard's own designated-credit projection set (see
// KeyRing.AssignShardWallets).
func walletAddresses(kr *keyring.KeyRing) []primitives.Address {
	out := make([]primitives.Address, 0, kr.WalletCount())
	for i := 0; i < kr.WalletCount(); i++ {
		addr, err := kr.WalletAddress(i)
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// forwardToInternetwork lets consensusworker hand REQUEST_BLOCK /
// GET_BLOCKS_SINCE / BLOCKS_SINCE straight to the internetwork pool without
// consensusworker importing internetworker directly.
type forwardToInternetwork struct {
	pool *workerpool.Pool[bus.Message]
}

func (f forwardToInternetwork) Handle(m bus.Message) { f.pool.Push(m) }

func runNode(cfg *nodeconfig.Config) (*node, error) {
	logging.SetLevels(logging.ParseLevel(cfg.DebugLevel), log)

	kr, err := keyring.Load(cfg.INNKeyFile, cfg.NodeKeyFile, cfg.WalletKeyFile, []byte(cfg.KeyPassphrase), nil)
	if err != nil {
		return nil, fmt.Errorf("loading key ring: %w", err)
	}
	shardIndex := uint32(cfg.ShardIndex)
	kr.AssignShardWallets(map[uint32][]primitives.Address{shardIndex: walletAddresses(kr)})

	localAddr, err := kr.NodeAddress(cfg.NodeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving this node's own address: %w", err)
	}
	localKey, err := kr.NodeKey(cfg.NodeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving this node's own key: %w", err)
	}

	archive, err := repeater.Open(cfg.RepeaterDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening repeater archive: %w", err)
	}

	b := bus.New()
	chain := blockchain.New()
	pool := txpool.New(localAddr, localKey, cfg.PeerCount, cfg.TxBatchSize, chain)

	internetWorker := internetworker.New(b, chain, kr, shardIndex, cfg.TxKind())
	internetPool := workerpool.New(cfg.NumInternetWorkers, cfg.TxBatchSize, internetWorker.Handle)

	consensusWorker := consensusworker.New(b, pool, chain, kr, forwardToInternetwork{internetPool},
		cfg.ShardIndex, cfg.PeerCount, cfg.NodeIndex, localAddr, localKey)
	consensusPool := workerpool.New(cfg.NumConsensusWorkers, cfg.TxBatchSize, consensusWorker.Handle)

	validatorWorker := validatorworker.New(b, pool, chain, kr, cfg.ShardIndex, cfg.PeerCount, cfg.NodeIndex)
	validatorPool := workerpool.New(cfg.NumValidatorWorkers, cfg.TxBatchSize, validatorWorker.Handle)

	validatorPool.Start()
	consensusPool.Start()
	internetPool.Start()

	dispatchShardTraffic(b, bus.ShardTopic(cfg.ShardIndex), validatorPool, consensusPool)
	dispatchRemoteTraffic(b, bus.RemoteTopic(cfg.NodeIndex), internetPool)
	archiveFinalBlocks(b, bus.ShardTopic(cfg.ShardIndex), archive)

	n := &node{
		validatorPool: validatorPool,
		consensusPool: consensusPool,
		internetPool:  internetPool,
		archive:       archive,
	}

	if cfg.ListenAddr != "" {
		n.loopback = startLoopbackServer(b, bus.ShardTopic(cfg.ShardIndex), cfg.ListenAddr)
	}

	log.Infof("node ready: mode=%s shard=%d node=%d peers=%d", cfg.Mode, cfg.ShardIndex, cfg.NodeIndex, cfg.PeerCount)
	return n, nil
}

// dispatchShardTraffic routes TRANSACTION_ANNOUNCEMENT to the validator pool
// and everything else on the shard topic (PROPOSAL_BLOCK, VALID,
// FINAL_BLOCK, and the cross-shard request types) to the consensus pool,
// which forwards the last three on to the internetwork pool itself.
func dispatchShardTraffic(b *bus.Bus, topic string, validatorPool, consensusPool *workerpool.Pool[bus.Message]) {
	ch := b.Subscribe(topic)
	go func() {
		for m := range ch {
			if m.Type == bus.TypeTransactionAnnouncement {
				validatorPool.Push(m)
				continue
			}
			consensusPool.Push(m)
		}
	}()
}

// dispatchRemoteTraffic routes BLOCKS_SINCE replies addressed to this node's
// own RemoteTopic straight to the internetwork pool.
func dispatchRemoteTraffic(b *bus.Bus, topic string, internetPool *workerpool.Pool[bus.Message]) {
	ch := b.Subscribe(topic)
	go func() {
		for m := range ch {
			internetPool.Push(m)
		}
	}()
}

// archiveFinalBlocks keeps a height counter in arrival order and records
// every FINAL_BLOCK seen on topic into archive, giving the FinalBlock
// emission contract a real subscriber per §3/§4.6. The pool always wraps a
// node's own transactions as T2Transaction (see txpool.ProposeBlock), so
// locally and remotely finalized blocks alike parse with TxKindT2 regardless
// of this process's own Mode. TxKindT1 is used only by the internetwork
// worker, for the FinalBlocks a T2 node receives in a BLOCKS_SINCE reply.
func archiveFinalBlocks(b *bus.Bus, topic string, archive *repeater.Repeater) {
	ch := b.Subscribe(topic)
	go func() {
		var height uint64
		for m := range ch {
			if m.Type != bus.TypeFinalBlock {
				continue
			}
			block, _, err := primitives.ParseFinalBlock(m.Payload, primitives.TxKindT2)
			if err != nil {
				log.Warnf("archive: dropping unparsable final block: %v", err)
				continue
			}
			if err := archive.Record(height, block); err != nil {
				log.Warnf("archive: failed to record block at height %d: %v", height, err)
				continue
			}
			height++
		}
	}()
}

func startLoopbackServer(b *bus.Bus, topic, addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: bus.NewLoopbackServer(b, topic)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("loopback server stopped: %v", err)
		}
	}()
	return srv
}

func (n *node) stop() {
	n.validatorPool.Stop()
	n.consensusPool.Stop()
	n.internetPool.Stop()
	if n.loopback != nil {
		_ = n.loopback.Shutdown(context.Background())
	}
	if n.archive != nil {
		_ = n.archive.Close()
	}
}

func main() {
	cfg, err := nodeconfig.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing configuration: %v\n", err)
		os.Exit(1)
	}

	n, err := runNode(cfg)
	if err != nil {
		log.Errorf("node initialization failed: %v", err)
		os.Exit(1)
	}

	log.Infof("devvd running, press Ctrl+C to stop")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Infof("caught signal %v, shutting down", sig)

	n.stop()
	log.Infof("devvd shut down cleanly")
}

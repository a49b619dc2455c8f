// Package nodeconfig parses the CLI knobs and consensus constants a devvd
// process starts from.
package nodeconfig

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"devv.network/node/internal/primitives"
)

// Mode selects which chain tier this process validates for.
type Mode string

const (
	ModeT1 Mode = "T1"
	ModeT2 Mode = "T2"
)

// Config holds every §6 CLI knob plus the consensus constants, parsed from
// flags, environment variables, and an optional INI file via go-flags.
type Config struct {
	Mode              Mode   `long:"mode" env:"DEVVD_MODE" choice:"T1" choice:"T2" default:"T2" description:"chain tier this process validates for"`
	NodeIndex         int    `long:"node-index" env:"DEVVD_NODE_INDEX" required:"true" description:"this process's position in the shard's ordered node-key list"`
	ShardIndex        int    `long:"shard-index" env:"DEVVD_SHARD_INDEX" default:"0" description:"shard this process belongs to"`
	TxBatchSize       int    `long:"tx-batch-size" env:"DEVVD_TX_BATCH_SIZE" default:"10000" description:"maximum pending transactions folded into one proposal"`
	NumConsensusWorkers int  `long:"num-consensus-threads" env:"DEVVD_NUM_CONSENSUS_THREADS" default:"8" description:"fixed worker count for the consensus pool"`
	NumValidatorWorkers int  `long:"num-validator-threads" env:"DEVVD_NUM_VALIDATOR_THREADS" default:"8" description:"fixed worker count for the validator pool"`
	NumInternetWorkers  int  `long:"num-internetwork-threads" env:"DEVVD_NUM_INTERNETWORK_THREADS" default:"8" description:"fixed worker count for the internetwork pool"`

	ValidationPercent int `long:"validation-percent" env:"DEVVD_VALIDATION_PERCENT" default:"51" description:"percentage of peers whose VALID crosses the finalization threshold; not read: the threshold is always peer-count/2+1"`
	PeerCount         int `long:"peer-count" env:"DEVVD_PEER_COUNT" default:"3" description:"number of peer nodes in this shard"`
	ProposalTimeoutMs int `long:"proposal-timeout-ms" env:"DEVVD_PROPOSAL_TIMEOUT_MS" default:"60000" description:"supervisor-enforced proposal timeout; not read by the core"`

	INNKeyFile    string `long:"inn-key-file" env:"DEVVD_INN_KEY_FILE" required:"true" description:"PEM file holding the shard's single INN record"`
	NodeKeyFile   string `long:"node-key-file" env:"DEVVD_NODE_KEY_FILE" required:"true" description:"PEM file holding the shard's ordered node records"`
	WalletKeyFile string `long:"wallet-key-file" env:"DEVVD_WALLET_KEY_FILE" required:"true" description:"PEM file holding the shard's ordered wallet records"`

	RepeaterDBPath string `long:"repeater-db" env:"DEVVD_REPEATER_DB" default:"devvd-repeater.db" description:"bbolt database path for archived final blocks"`

	KeyPassphrase string `long:"key-passphrase" env:"DEVVD_KEY_PASSPHRASE" required:"true" description:"passphrase decrypting the INN/node/wallet key files; prefer the env var over the flag"`

	ListenAddr string `long:"listen" env:"DEVVD_LISTEN" default:"" description:"optional websocket loopback listen address; empty disables it"`

	DebugLevel string `long:"debuglevel" env:"DEVVD_DEBUGLEVEL" default:"info" description:"logging level applied to the MAIN logger; other subsystem loggers keep their default level"`
}

// Threshold returns the number of distinct VALID signers (including the
// proposer) required to finalize: floor(peer_count/2) + 1, matching
// VALIDATION_PERCENT = 51 applied to an odd peer count.
func (c Config) Threshold() int {
	return c.PeerCount/2 + 1
}

// IsLeader reports whether this node proposes at height h, per
// height mod peer_count == node_index mod peer_count.
func (c Config) IsLeader(height uint64) bool {
	return int(height%uint64(c.PeerCount)) == c.NodeIndex%c.PeerCount
}

// TxKind maps Mode to the primitives.TxKind the wire codec needs.
func (c Config) TxKind() primitives.TxKind {
	if c.Mode == ModeT1 {
		return primitives.TxKindT1
	}
	return primitives.TxKindT2
}

// Parse reads args (typically os.Args[1:]) into a Config, honoring
// environment variables through each field's env tag. It reads no INI
// file; ParseIniFile does that separately.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("parsing CLI flags: %w", err)
	}
	return cfg, nil
}

// ParseIniFile parses the INI file at path into cfg via go-flags'
// IniParser. Parse does not call it and starts from a fresh Config, so
// values loaded here are not layered under environment or CLI values.
func ParseIniFile(path string, cfg *Config) error {
	parser := flags.NewParser(cfg, flags.Default)
	return flags.NewIniParser(parser).ParseFile(path)
}

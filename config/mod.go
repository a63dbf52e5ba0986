// Package config defines the configuration of the blog client.
//
// The configuration is read from a YAML file. Missing values keep the defaults
// of Default, so that an empty file is a valid configuration that targets a
// local sandbox network.
package config

import (
	"io/ioutil"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"go.dedis.ch/chainblog/blog"
	contract "go.dedis.ch/chainblog/contracts/blog"
	"go.dedis.ch/chainblog/core/pipeline"
	"go.dedis.ch/chainblog/core/txn"
	"go.dedis.ch/chainblog/post"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// MaxShardBound is the maximum number of keys of the global state of an
// application.
const MaxShardBound = 64

// Endpoint is the address of a REST service and its access token.
type Endpoint struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
}

// Schema is the state schema of the applications.
type Schema struct {
	GlobalInts  uint64 `yaml:"global_ints"`
	GlobalBytes uint64 `yaml:"global_bytes"`
	LocalInts   uint64 `yaml:"local_ints"`
	LocalBytes  uint64 `yaml:"local_bytes"`
}

// App is the configuration of the blog application.
type App struct {
	Note       string `yaml:"note"`
	MinRound   uint64 `yaml:"min_round"`
	WaitRounds uint64 `yaml:"wait_rounds"`
	ShardBound int    `yaml:"shard_bound"`
	Schema     Schema `yaml:"schema"`
}

// Wallet is the configuration of the key wallet.
type Wallet struct {
	Keyfile string `yaml:"keyfile"`
	Name    string `yaml:"name"`
}

// Sandbox is the configuration of the in-process ledger. It is used instead
// of the remote services when the path is set.
type Sandbox struct {
	Path   string `yaml:"path"`
	Funds  uint64 `yaml:"funds"`
	MinFee uint64 `yaml:"min_fee"`
}

// Gateway is the configuration of the HTTP gateway.
type Gateway struct {
	Listen string `yaml:"listen"`
}

// Config is the configuration of the blog client.
type Config struct {
	Algod   Endpoint `yaml:"algod"`
	Indexer Endpoint `yaml:"indexer"`
	App     App      `yaml:"app"`
	Wallet  Wallet   `yaml:"wallet"`
	Sandbox Sandbox  `yaml:"sandbox"`
	Gateway Gateway  `yaml:"gateway"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Algod: Endpoint{
			Address: "http://localhost:4001",
			Token:   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
		Indexer: Endpoint{
			Address: "http://localhost:8980",
		},
		App: App{
			Note:       contract.DefaultNote,
			WaitRounds: pipeline.DefaultWaitRounds,
			ShardBound: post.DefaultShardBound,
			Schema: Schema{
				GlobalInts:  txn.DefaultGlobalSchema.NumUint,
				GlobalBytes: txn.DefaultGlobalSchema.NumByteSlice,
			},
		},
		Wallet: Wallet{
			Keyfile: "wallet.key",
		},
		Sandbox: Sandbox{
			Funds: 10_000_000,
		},
		Gateway: Gateway{
			Listen: "127.0.0.1:8080",
		},
	}
}

// Load reads the configuration file on top of the default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("failed to read config: %v", err)
	}

	err = yaml.UnmarshalStrict(data, &cfg)
	if err != nil {
		return cfg, xerrors.Errorf("failed to decode config: %v", err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, xerrors.Errorf("invalid config: %v", err)
	}

	return cfg, nil
}

// Save writes the configuration to the file.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return xerrors.Errorf("failed to encode config: %v", err)
	}

	err = ioutil.WriteFile(path, data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write config: %v", err)
	}

	return nil
}

// Validate returns an error if a value is out of range.
func (c Config) Validate() error {
	if c.App.Note == "" {
		return xerrors.New("note is empty")
	}

	if c.App.WaitRounds == 0 {
		return xerrors.New("wait rounds must be positive")
	}

	if c.App.ShardBound < 1 || c.App.ShardBound > MaxShardBound {
		return xerrors.Errorf("shard bound %d outside of [1, %d]",
			c.App.ShardBound, MaxShardBound)
	}

	keys := c.App.Schema.GlobalInts + c.App.Schema.GlobalBytes
	if keys > MaxShardBound {
		return xerrors.Errorf("schema of %d keys exceeds %d", keys, MaxShardBound)
	}

	return nil
}

// Layout returns the layout of the posts.
func (c Config) Layout() post.Layout {
	return post.NewLayout(post.WithShardBound(c.App.ShardBound))
}

// ServiceOptions returns the options of the blog service.
func (c Config) ServiceOptions() []blog.Option {
	global := types.StateSchema{
		NumUint:      c.App.Schema.GlobalInts,
		NumByteSlice: c.App.Schema.GlobalBytes,
	}

	local := types.StateSchema{
		NumUint:      c.App.Schema.LocalInts,
		NumByteSlice: c.App.Schema.LocalBytes,
	}

	return []blog.Option{
		blog.WithNote(c.App.Note),
		blog.WithMinRound(c.App.MinRound),
		blog.WithWaitRounds(c.App.WaitRounds),
		blog.WithLayout(c.Layout()),
		blog.WithSchema(global, local),
	}
}

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/chainblog/post"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	require.Equal(t, "blog-dapp:uv2", cfg.App.Note)
	require.Equal(t, uint64(4), cfg.App.WaitRounds)
	require.Equal(t, 60, cfg.App.ShardBound)
	require.Equal(t, Schema{GlobalInts: 2, GlobalBytes: 62}, cfg.App.Schema)
	require.Equal(t, post.NewLayout(), cfg.Layout())
	require.Len(t, cfg.ServiceOptions(), 5)
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "chainblog-config")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yml")

	data := []byte(`
algod:
  address: http://algod:4001
app:
  note: my-blog
  min_round: 42
  shard_bound: 10
sandbox:
  path: /tmp/ledger.db
`)

	require.NoError(t, ioutil.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://algod:4001", cfg.Algod.Address)
	require.Equal(t, Default().Algod.Token, cfg.Algod.Token)
	require.Equal(t, "my-blog", cfg.App.Note)
	require.Equal(t, uint64(42), cfg.App.MinRound)
	require.Equal(t, uint64(4), cfg.App.WaitRounds)
	require.Equal(t, 10, cfg.Layout().ShardBound())
	require.Equal(t, "/tmp/ledger.db", cfg.Sandbox.Path)

	require.NoError(t, ioutil.WriteFile(path, []byte("app:\n  unknown: 1\n"), 0600))
	_, err = Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode config: ")

	require.NoError(t, ioutil.WriteFile(path, []byte("app:\n  wait_rounds: 0\n"), 0600))
	_, err = Load(path)
	require.EqualError(t, err, "invalid config: wait rounds must be positive")

	_, err = Load(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config: ")
}

func TestConfig_Save(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "chainblog-config")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yml")

	cfg := Default()
	cfg.Wallet.Name = "alice"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	err = cfg.Save(filepath.Join(dir, "missing", "config.yml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to write config: ")
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	cfg.App.Note = ""
	require.EqualError(t, cfg.Validate(), "note is empty")

	cfg = Default()
	cfg.App.ShardBound = 0
	require.EqualError(t, cfg.Validate(), "shard bound 0 outside of [1, 64]")

	cfg.App.ShardBound = 65
	require.EqualError(t, cfg.Validate(), "shard bound 65 outside of [1, 64]")

	cfg = Default()
	cfg.App.Schema.GlobalBytes = 63
	require.EqualError(t, cfg.Validate(), "schema of 65 keys exceeds 64")
}

// Package main implements the command line client of the blog.
//
// The client talks to the ledger node and the indexing service of the network
// set in the configuration, or to a sandbox ledger stored in a local file.
//
//	chainblog --sandbox /tmp/blog.db sandbox fund
//	chainblog --sandbox /tmp/blog.db post create --title Hello --image\
//	  https://example.com/a.png --content "first post"
//	chainblog --sandbox /tmp/blog.db post list
//	chainblog --config chainblog.yml serve --listen 127.0.0.1:8080
//
// The signing key of the wallet is stored in the keyfile, which is created on
// first use.
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/chainblog/cli"
	"go.dedis.ch/chainblog/cli/ucli"
	"go.dedis.ch/chainblog/internal/tracing"
)

const (
	flagConfig       = "config"
	flagKeyfile      = "keyfile"
	flagSandbox      = "sandbox"
	flagAlgod        = "algod"
	flagAlgodToken   = "algod-token"
	flagIndexer      = "indexer"
	flagIndexerToken = "indexer-token"
	flagTracing      = "tracing"
	flagJSON         = "json"
	flagID           = "id"
	flagTitle        = "title"
	flagImage        = "image"
	flagContent      = "content"
	flagAddress      = "address"
	flagAmount       = "amount"
	flagListen       = "listen"
	flagLimit        = "limit"
)

var getTracer = tracing.GetTracer

// env is the environment of a run of the application.
type env struct {
	// Channel receives the signal that stops the gateway.
	Channel chan os.Signal

	// Writer is the output of the commands.
	Writer io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithEnv(args, env{
		Channel: make(chan os.Signal, 1),
		Writer:  os.Stdout,
	})
}

func runWithEnv(args []string, e env) error {
	defer tracing.CloseAll()

	builder := ucli.NewBuilder("chainblog",
		ucli.WithUsage("client of a blog stored on the ledger"),
		ucli.WithWriter(e.Writer),
		ucli.WithFlags(
			cli.PathFlag{
				Name:  flagConfig,
				Usage: "path to the YAML configuration",
			},
			cli.PathFlag{
				Name:  flagKeyfile,
				Usage: "path to the key of the wallet",
			},
			cli.PathFlag{
				Name:  flagSandbox,
				Usage: "path to a sandbox ledger used instead of the network",
			},
			cli.StringFlag{
				Name:  flagAlgod,
				Usage: "address of the ledger node",
			},
			cli.StringFlag{
				Name:  flagAlgodToken,
				Usage: "access token of the ledger node",
			},
			cli.StringFlag{
				Name:  flagIndexer,
				Usage: "address of the indexing service",
			},
			cli.StringFlag{
				Name:  flagIndexerToken,
				Usage: "access token of the indexing service",
			},
			cli.BoolFlag{
				Name:  flagTracing,
				Usage: "report the traces to the jaeger agent set in the environment",
			},
		))

	ctrl := controller{env: e}
	ctrl.build(builder)

	return builder.Build().Run(args)
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"go.dedis.ch/chainblog"
	"go.dedis.ch/chainblog/blog"
	"go.dedis.ch/chainblog/cli"
	"go.dedis.ch/chainblog/config"
	"go.dedis.ch/chainblog/core/store/kv"
	"go.dedis.ch/chainblog/gateway"
	"go.dedis.ch/chainblog/ledger"
	"go.dedis.ch/chainblog/ledger/algorand"
	"go.dedis.ch/chainblog/ledger/sandbox"
	"go.dedis.ch/chainblog/post"
	"go.dedis.ch/chainblog/wallet"
	"golang.org/x/xerrors"
)

const shutdownTimeout = 10 * time.Second

// controller creates the commands of the application.
type controller struct {
	env env
}

// build populates the builder with the commands.
func (c controller) build(builder cli.Builder) {
	cmd := builder.SetCommand("account")
	cmd.SetDescription("show the account of the wallet and its balance")
	cmd.SetAction(c.account)

	cmd = builder.SetCommand("post")
	cmd.SetDescription("manage the posts")

	sub := cmd.SetSubCommand("list")
	sub.SetDescription("list the posts")
	sub.SetFlags(
		cli.BoolFlag{Name: flagJSON, Usage: "print the posts as JSON"},
		cli.IntFlag{Name: flagLimit, Usage: "maximum number of posts to print, 0 for all"},
	)
	sub.SetAction(c.listPosts)

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("show a post")
	sub.SetFlags(idFlag(), cli.BoolFlag{Name: flagJSON, Usage: "print the post as JSON"})
	sub.SetAction(c.showPost)

	sub = cmd.SetSubCommand("create")
	sub.SetDescription("create a post owned by the wallet account")
	sub.SetFlags(draftFlags()...)
	sub.SetAction(c.createPost)

	sub = cmd.SetSubCommand("edit")
	sub.SetDescription("replace the fields of a post of the wallet account")
	sub.SetFlags(append(draftFlags(), idFlag())...)
	sub.SetAction(c.editPost)

	sub = cmd.SetSubCommand(string(post.Upvote))
	sub.SetDescription("upvote a post")
	sub.SetFlags(idFlag())
	sub.SetAction(c.vote(post.Upvote))

	sub = cmd.SetSubCommand(string(post.Downvote))
	sub.SetDescription("downvote a post")
	sub.SetFlags(idFlag())
	sub.SetAction(c.vote(post.Downvote))

	sub = cmd.SetSubCommand("delete")
	sub.SetDescription("delete a post of the wallet account")
	sub.SetFlags(idFlag())
	sub.SetAction(c.deletePost)

	cmd = builder.SetCommand("sandbox")
	cmd.SetDescription("manage the sandbox ledger")

	sub = cmd.SetSubCommand("fund")
	sub.SetDescription("add funds to an account, by default the one of the wallet")
	sub.SetFlags(
		cli.StringFlag{Name: flagAddress, Usage: "address of the account"},
		cli.Uint64Flag{Name: flagAmount, Usage: "amount in micro units, by default the configured one"},
	)
	sub.SetAction(c.fund)

	cmd = builder.SetCommand("serve")
	cmd.SetDescription("serve the HTTP gateway until interrupted")
	cmd.SetFlags(cli.StringFlag{Name: flagListen, Usage: "address of the gateway"})
	cmd.SetAction(c.serve)
}

func idFlag() cli.Flag {
	return cli.Uint64Flag{
		Name:     flagID,
		Usage:    "identifier of the post",
		Required: true,
	}
}

func draftFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: flagTitle, Usage: "title of the post", Required: true},
		cli.StringFlag{Name: flagImage, Usage: "address of the image", Required: true},
		cli.StringFlag{Name: flagContent, Usage: "content of the post"},
	}
}

func readDraft(flags cli.Flags) post.Draft {
	return post.Draft{
		Title:   flags.String(flagTitle),
		Image:   flags.String(flagImage),
		Content: flags.String(flagContent),
	}
}

func (c controller) account(flags cli.Flags) error {
	return c.withService(flags, true, func(ctx context.Context, srv *blog.Service) error {
		account := srv.Account()

		fmt.Fprintf(c.env.Writer, "Address: %s\n", account.Address)
		fmt.Fprintf(c.env.Writer, "Name:    %s\n", account.Name)

		return c.printBalance(ctx, srv)
	})
}

func (c controller) listPosts(flags cli.Flags) error {
	limit := flags.Int(flagLimit)
	if limit < 0 {
		return xerrors.Errorf("invalid limit %d", limit)
	}

	return c.withService(flags, false, func(ctx context.Context, srv *blog.Service) error {
		posts, err := srv.List(ctx)
		if err != nil {
			return xerrors.Errorf("failed to list posts: %v", err)
		}

		if limit > 0 && len(posts) > limit {
			posts = posts[:limit]
		}

		if flags.Bool(flagJSON) {
			return c.printJSON(posts)
		}

		c.printPosts(posts)

		return nil
	})
}

func (c controller) showPost(flags cli.Flags) error {
	return c.withService(flags, false, func(ctx context.Context, srv *blog.Service) error {
		p, err := srv.Get(ctx, flags.Uint64(flagID))
		if err != nil {
			return xerrors.Errorf("failed to read post: %v", err)
		}

		if flags.Bool(flagJSON) {
			return c.printJSON(p)
		}

		fmt.Fprintf(c.env.Writer, "#%d %s\n", p.ID, p.Title)
		fmt.Fprintf(c.env.Writer, "Image: %s\n", p.Image)
		fmt.Fprintf(c.env.Writer, "Owner: %s\n", p.Owner)
		fmt.Fprintf(c.env.Writer, "Votes: +%d -%d\n\n", p.Upvotes, p.Downvotes)
		fmt.Fprintln(c.env.Writer, p.Content)

		return nil
	})
}

func (c controller) createPost(flags cli.Flags) error {
	return c.mutate(flags, func(ctx context.Context, srv *blog.Service) (blog.Result, error) {
		return srv.Create(ctx, readDraft(flags))
	})
}

func (c controller) editPost(flags cli.Flags) error {
	return c.mutate(flags, func(ctx context.Context, srv *blog.Service) (blog.Result, error) {
		return srv.Edit(ctx, flags.Uint64(flagID), readDraft(flags))
	})
}

func (c controller) vote(dir post.Direction) cli.Action {
	return func(flags cli.Flags) error {
		return c.mutate(flags, func(ctx context.Context, srv *blog.Service) (blog.Result, error) {
			return srv.Vote(ctx, flags.Uint64(flagID), dir)
		})
	}
}

func (c controller) deletePost(flags cli.Flags) error {
	return c.mutate(flags, func(ctx context.Context, srv *blog.Service) (blog.Result, error) {
		return srv.Delete(ctx, flags.Uint64(flagID))
	})
}

type mutation func(ctx context.Context, srv *blog.Service) (blog.Result, error)

// mutate runs the mutation, then prints its outcome, the listing and the
// balance of the account.
func (c controller) mutate(flags cli.Flags, fn mutation) error {
	return c.withService(flags, true, func(ctx context.Context, srv *blog.Service) error {
		res, err := fn(ctx, srv)
		if err != nil {
			return err
		}

		out := res.Outcome

		fmt.Fprintf(c.env.Writer, "Transaction %s confirmed in round %d\n",
			out.TxID, out.ConfirmedRound)

		if out.ApplicationID != 0 {
			fmt.Fprintf(c.env.Writer, "Post #%d created\n", out.ApplicationID)
		}

		c.printPosts(res.Posts)

		return c.printBalance(ctx, srv)
	})
}

func (c controller) fund(flags cli.Flags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	if cfg.Sandbox.Path == "" {
		return xerrors.New("funding requires a sandbox ledger")
	}

	l, err := openSandbox(cfg)
	if err != nil {
		return err
	}

	defer l.Close()

	address := flags.String(flagAddress)
	if address == "" {
		w, err := openWallet(cfg)
		if err != nil {
			return err
		}

		address = w.Address().String()
	}

	amount := cfg.Sandbox.Funds
	if flags.IsSet(flagAmount) {
		amount = flags.Uint64(flagAmount)
	}

	err = l.Fund(address, amount)
	if err != nil {
		return xerrors.Errorf("sandbox: %v", err)
	}

	fmt.Fprintf(c.env.Writer, "Funded %s with %d\n", address, amount)

	return nil
}

func (c controller) serve(flags cli.Flags) error {
	return c.withService(flags, true, func(ctx context.Context, srv *blog.Service) error {
		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}

		listen := cfg.Gateway.Listen
		if flags.String(flagListen) != "" {
			listen = flags.String(flagListen)
		}

		gw := gateway.NewGateway(srv)

		err = gw.Listen(listen)
		if err != nil {
			return xerrors.Errorf("failed to start gateway: %v", err)
		}

		fmt.Fprintf(c.env.Writer, "Gateway listening on %s\n", gw.Addr())

		signal.Notify(c.env.Channel, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c.env.Channel)

		<-c.env.Channel

		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		err = gw.Stop(ctx)
		if err != nil {
			return xerrors.Errorf("failed to stop gateway: %v", err)
		}

		fmt.Fprintln(c.env.Writer, "Gateway stopped")

		return nil
	})
}

// withService creates the service from the configuration and the flags, then
// calls the function. The wallet is connected when required.
func (c controller) withService(flags cli.Flags, connect bool,
	fn func(context.Context, *blog.Service) error) error {

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	client, indexer, closer, err := openLedger(cfg)
	if err != nil {
		return err
	}

	defer closer()

	w, err := openWallet(cfg)
	if err != nil {
		return err
	}

	opts := cfg.ServiceOptions()

	if flags.Bool(flagTracing) {
		tracer, err := getTracer("chainblog")
		if err != nil {
			return xerrors.Errorf("failed to get tracer: %v", err)
		}

		opts = append(opts, blog.WithTracer(tracer))
	}

	srv := blog.NewService(client, indexer, w, opts...)

	ctx := context.Background()

	if connect {
		_, err = srv.Connect(ctx)
		if err != nil {
			return err
		}
	}

	return fn(ctx, srv)
}

func (c controller) printBalance(ctx context.Context, srv *blog.Service) error {
	balance, err := srv.Balance(ctx)
	if xerrors.Is(err, ledger.ErrNotFound) {
		fmt.Fprintln(c.env.Writer, "Balance: 0")
		return nil
	}

	if err != nil {
		return xerrors.Errorf("failed to read balance: %v", err)
	}

	fmt.Fprintf(c.env.Writer, "Balance: %d (round %d)\n", balance.Amount, balance.Round)

	return nil
}

func (c controller) printPosts(posts []post.Post) {
	w := tabwriter.NewWriter(c.env.Writer, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tTITLE\tUP\tDOWN\tOWNER")

	for _, p := range posts {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", p.ID, p.Title, p.Upvotes, p.Downvotes, p.Owner)
	}

	w.Flush()
}

func (c controller) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to encode: %v", err)
	}

	fmt.Fprintln(c.env.Writer, string(data))

	return nil
}

// loadConfig reads the configuration file, if any, and applies the flags on
// top of it.
func loadConfig(flags cli.Flags) (config.Config, error) {
	cfg := config.Default()

	path := flags.Path(flagConfig)
	if path != "" {
		var err error

		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}

	overrides := []struct {
		flag  string
		value *string
	}{
		{flagKeyfile, &cfg.Wallet.Keyfile},
		{flagSandbox, &cfg.Sandbox.Path},
		{flagAlgod, &cfg.Algod.Address},
		{flagAlgodToken, &cfg.Algod.Token},
		{flagIndexer, &cfg.Indexer.Address},
		{flagIndexerToken, &cfg.Indexer.Token},
	}

	for _, o := range overrides {
		if flags.IsSet(o.flag) {
			*o.value = flags.String(o.flag)
		}
	}

	return cfg, nil
}

// openLedger returns the ledger capabilities of the configuration and the
// function to release them.
func openLedger(cfg config.Config) (ledger.Client, ledger.Indexer, func(), error) {
	if cfg.Sandbox.Path != "" {
		l, err := openSandbox(cfg)
		if err != nil {
			return nil, nil, nil, err
		}

		closer := func() {
			err := l.Close()
			if err != nil {
				chainblog.Logger.Warn().Err(err).Msg("failed to close sandbox")
			}
		}

		return l, l, closer, nil
	}

	client, err := algorand.NewClient(cfg.Algod.Address, cfg.Algod.Token)
	if err != nil {
		return nil, nil, nil, xerrors.Errorf("failed to create ledger client: %v", err)
	}

	indexer, err := algorand.NewIndexer(cfg.Indexer.Address, cfg.Indexer.Token)
	if err != nil {
		return nil, nil, nil, xerrors.Errorf("failed to create indexer client: %v", err)
	}

	return client, indexer, func() {}, nil
}

func openSandbox(cfg config.Config) (*sandbox.Ledger, error) {
	db, err := kv.New(cfg.Sandbox.Path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open sandbox: %v", err)
	}

	opts := []sandbox.Option{
		sandbox.WithDB(db),
		sandbox.WithContract(cfg.App.Note, cfg.Layout()),
	}

	if cfg.Sandbox.MinFee > 0 {
		opts = append(opts, sandbox.WithMinFee(cfg.Sandbox.MinFee))
	}

	l, err := sandbox.NewLedger(opts...)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to create sandbox: %v", err)
	}

	return l, nil
}

func openWallet(cfg config.Config) (*wallet.KeyWallet, error) {
	var opts []wallet.KeyWalletOption
	if cfg.Wallet.Name != "" {
		opts = append(opts, wallet.WithName(cfg.Wallet.Name))
	}

	w, err := wallet.NewKeyWallet(wallet.NewFileLoader(cfg.Wallet.Keyfile), opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to open wallet: %v", err)
	}

	return w, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aussiebroadwan/lpr/internal/lpr/app"
	"github.com/aussiebroadwan/lpr/internal/lpr/service"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML config file",
		Value:   app.DefaultConfigFile,
		EnvVars: []string{"LPR_CONFIG"},
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
	retireFlag = &cli.BoolFlag{
		Name:  "retire-existing",
		Usage: "Retire the currently active keys once the new key is in place",
	}
	actorFlag = &cli.StringFlag{
		Name:  "actor",
		Usage: "Operator name recorded in the audit log",
		Value: "cli",
	}
	fromFlag = &cli.Uint64Flag{
		Name:  "from",
		Usage: "First sequence number to check",
	}
	toFlag = &cli.Uint64Flag{
		Name:  "to",
		Usage: "Last sequence number to check (0 for the head of the log)",
	}
)

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "lprd"
	a.EnableBashCompletion = true
	a.Usage = "lprd - limited permission receipt engine"
	a.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	a.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API",
			Action: serve,
		},
		{
			Name:  "keys",
			Usage: "Manage signing keys",
			Subcommands: []*cli.Command{
				{
					Name:   "generate",
					Usage:  "Provision secrets and a first signing key",
					Action: generateKeys,
				},
				{
					Name:   "rotate",
					Usage:  "Create a new signing key",
					Flags:  []cli.Flag{retireFlag, actorFlag},
					Action: rotateKey,
				},
				{
					Name:   "list",
					Usage:  "List signing keys",
					Action: listKeys,
				},
				{
					Name:      "retire",
					Usage:     "Stop a key from signing",
					ArgsUsage: "<kid>",
					Flags:     []cli.Flag{actorFlag},
					Action:    retireKey,
				},
			},
		},
		{
			Name:  "audit",
			Usage: "Inspect the audit log",
			Subcommands: []*cli.Command{
				{
					Name:   "verify",
					Usage:  "Check the hash chain and signatures of the audit log",
					Flags:  []cli.Flag{fromFlag, toFlag},
					Action: verifyAudit,
				},
			},
		},
		{
			Name:  "version",
			Usage: "Print the build version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(app.BuildVersion)
				return nil
			},
		},
	}
	a.Action = serve
	return a
}

func loadConfig(ctx *cli.Context) (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	if ctx.Bool(debugFlag.Name) {
		cfg.Log.Level = "debug"
	}
	return cfg, app.NewLogger(cfg), nil
}

func serve(ctx *cli.Context) error {
	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}

func generateKeys(ctx *cli.Context) error {
	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	res, err := app.GenerateKeys(ctx.Context, cfg, logger)
	if err != nil {
		return err
	}
	if res.MasterKeyFile != "" {
		fmt.Println("master key written to", res.MasterKeyFile)
	}
	if res.PseudonymKeyFile != "" {
		fmt.Println("pseudonym key written to", res.PseudonymKeyFile)
	}
	if res.Kid != "" {
		fmt.Println("signing key created:", res.Kid)
	} else {
		fmt.Println("an active signing key is already present")
	}
	return nil
}

func withOperator(ctx *cli.Context, fn func(op *app.Operator) error) error {
	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	op, err := app.NewOperator(ctx.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer op.Close()
	return fn(op)
}

func rotateKey(ctx *cli.Context) error {
	return withOperator(ctx, func(op *app.Operator) error {
		resp, err := op.Keys.RotateKey(ctx.Context, service.RotateKeyRequest{
			RetireExisting: ctx.Bool(retireFlag.Name),
			Actor:          ctx.String(actorFlag.Name),
		})
		if err != nil {
			return err
		}
		fmt.Printf("new signing key: %s (%s)\n", resp.NewKey.Kid, resp.NewKey.Algorithm)
		for _, k := range resp.RetiredKeys {
			fmt.Printf("retired: %s\n", k.Kid)
		}
		fmt.Printf("active keys: %d\n", resp.ActiveKeys)
		fmt.Println("running servers pick up the change on their next housekeeping pass")
		return nil
	})
}

func listKeys(ctx *cli.Context) error {
	return withOperator(ctx, func(op *app.Operator) error {
		keys, err := op.Keys.ListSigningKeys(ctx.Context)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KID\tALGORITHM\tCREATED\tSTATUS\tEXPIRES")
		for _, k := range keys {
			status, expires := "active", "-"
			if !k.IsActive() {
				status = "retired"
			}
			if k.ExpiresAt != nil {
				expires = k.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.Kid, k.Algorithm, k.CreatedAt.Format(time.RFC3339), status, expires)
		}
		return w.Flush()
	})
}

func retireKey(ctx *cli.Context) error {
	kid := ctx.Args().First()
	if kid == "" {
		return cli.Exit("usage: lprd keys retire <kid>", 2)
	}
	return withOperator(ctx, func(op *app.Operator) error {
		if err := op.Keys.RetireKey(ctx.Context, kid, ctx.String(actorFlag.Name)); err != nil {
			return err
		}
		fmt.Println("retired:", kid)
		return nil
	})
}

func verifyAudit(ctx *cli.Context) error {
	return withOperator(ctx, func(op *app.Operator) error {
		report, err := op.Audit.VerifyChainIntegrity(ctx.Context, ctx.Uint64(fromFlag.Name), ctx.Uint64(toFlag.Name))
		if err != nil {
			return err
		}
		if !report.Valid {
			return cli.Exit(fmt.Sprintf("audit chain broken at %d: %s", report.BrokenAt, report.Reason), 1)
		}
		fmt.Printf("audit chain intact: %d entries checked (%d..%d)\n", report.Checked, report.From, report.To)
		return nil
	})
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"text/tabwriter"

	"github.com/ruteri/etsi014-conformance/cmd/flags"
	"github.com/ruteri/etsi014-conformance/config"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/identity"
	"github.com/ruteri/etsi014-conformance/scenario"
	"github.com/urfave/cli/v2"
)

var selectionFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:  "family",
		Usage: "only run scenarios of this family (repeatable)",
	},
	&cli.StringFlag{
		Name:  "match",
		Value: "",
		Usage: "only run scenarios whose name matches this regular expression",
	},
}

var runFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Value:   "",
		Usage:   "YAML configuration file, environment variables take precedence",
		EnvVars: []string{config.EnvPrefix + "CONFIG"},
	},
	&cli.IntFlag{
		Name:  "parallel",
		Value: 1,
		Usage: "number of scenarios run concurrently",
	},
	&cli.StringFlag{
		Name:  "output",
		Value: "text",
		Usage: "report format: 'text' or 'json'",
	},
	flags.LogServiceFlagFn("etsi014-conformance"),
}, append(selectionFlags, flags.LogFlags...)...)

func main() {
	app := &cli.App{
		Name:           "etsi014-conformance",
		Usage:          "Check a KME against the ETSI GS QKD 014 key delivery API",
		DefaultCommand: "run",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the conformance scenarios against the configured KMEs",
				Flags:  runFlags,
				Action: runConformance,
			},
			{
				Name:   "list",
				Usage:  "list the conformance scenarios without contacting a KME",
				Flags:  selectionFlags,
				Action: listScenarios,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func selectScenarios(cCtx *cli.Context, dir scenario.Directory) ([]scenario.Scenario, error) {
	var families []scenario.Family
	for _, v := range cCtx.StringSlice("family") {
		f, err := scenario.ParseFamily(v)
		if err != nil {
			return nil, err
		}
		families = append(families, f)
	}

	var match *regexp.Regexp
	if expr := cCtx.String("match"); expr != "" {
		var err error
		match, err = regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid --match expression: %w", err)
		}
	}

	selected := scenario.Filter(scenario.DefaultTable(dir), families, match)
	if len(selected) == 0 {
		return nil, errors.New("no scenario selected")
	}
	return selected, nil
}

func runConformance(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	output := cCtx.String("output")
	if output != "text" && output != "json" {
		return fmt.Errorf("invalid output format: %s", output)
	}

	cfg, err := config.Load(cCtx.String("config"), os.LookupEnv)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return err
	}

	registry, err := identity.Load(cfg)
	if err != nil {
		logger.Error("Failed to load identities", "err", err)
		return err
	}

	scenarios, err := selectScenarios(cCtx, registry)
	if err != nil {
		return err
	}

	factory := cryptoutils.NewTransportFactory(registry.Roots(), cfg.RequestTimeout)
	runner := scenario.NewRunner(registry, factory, logger, scenario.WithParallelism(cCtx.Int("parallel")))

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Running conformance scenarios", "count", len(scenarios), "server", cfg.BaseServerURL, "client", cfg.BaseClientURL)
	report := runner.RunAll(ctx, scenarios)

	if output == "json" {
		err = report.WriteJSON(os.Stdout)
	} else {
		err = report.WriteText(os.Stdout)
	}
	if err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}

	if !report.OK() {
		return cli.Exit("", 1)
	}
	return nil
}

func listScenarios(cCtx *cli.Context) error {
	scenarios, err := selectScenarios(cCtx, scenario.RoleNames{})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FAMILY\tSCENARIO\tSTEPS\tCHECKS")
	for _, sc := range scenarios {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", sc.Family, sc.Name, len(sc.Steps), len(sc.Checks))
	}
	return tw.Flush()
}

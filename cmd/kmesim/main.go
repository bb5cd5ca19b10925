package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/ruteri/etsi014-conformance/api/kmehandler"
	"github.com/ruteri/etsi014-conformance/cmd/flags"
	"github.com/ruteri/etsi014-conformance/config"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/httpserver"
	"github.com/ruteri/etsi014-conformance/interfaces"
	"github.com/ruteri/etsi014-conformance/kme"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var defaultSAEIDs = map[interfaces.Role]string{
	interfaces.RoleMaster:       "sae-master",
	interfaces.RoleSlave:        "sae-slave",
	interfaces.RoleAdditional:   "sae-additional",
	interfaces.RoleUnauthorized: "sae-unauthorized",
}

var serveFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8443",
		Usage: "address to listen on for the key delivery API",
	},
	&cli.StringFlag{
		Name:     "tls-cert",
		Usage:    "PEM file with the KME server certificate",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "tls-key",
		Usage:    "PEM file with the KME server key",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "client-ca",
		Usage:    "PEM file with the CA SAE certificates must chain to",
		Required: true,
	},
	&cli.StringSliceFlag{
		Name:  "sae-ids",
		Value: cli.NewStringSlice(sortedDefaultSAEIDs()...),
		Usage: "SAE ids known to the KME, matched against client certificate common names",
	},
	&cli.StringFlag{
		Name:  "base-path",
		Value: kmehandler.DefaultBasePath,
		Usage: "path prefix of the key delivery API",
	},
	&cli.StringFlag{
		Name:  "kme-id",
		Value: "kme-sim",
		Usage: "KME id reported in status responses",
	},
	&cli.StringFlag{
		Name:  "limits",
		Value: "",
		Usage: "optional YAML file overriding the KME limits",
	},
	flags.LogServiceFlagFn("kmesim"),
}, append(flags.ServerFlags, flags.LogFlags...)...)

var genPKIFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "dir",
		Value: "pki",
		Usage: "directory receiving the generated files",
	},
	&cli.StringSliceFlag{
		Name:  "hosts",
		Value: cli.NewStringSlice("localhost", "127.0.0.1"),
		Usage: "DNS names and IPs of the KME server certificate",
	},
	&cli.StringFlag{
		Name:  "base-url",
		Value: "https://localhost:8443" + kmehandler.DefaultBasePath,
		Usage: "KME base URL written to the env file for both master and slave sides",
	},
	&cli.StringFlag{Name: "master-sae-id", Value: defaultSAEIDs[interfaces.RoleMaster]},
	&cli.StringFlag{Name: "slave-sae-id", Value: defaultSAEIDs[interfaces.RoleSlave]},
	&cli.StringFlag{Name: "add-slave-sae-id", Value: defaultSAEIDs[interfaces.RoleAdditional]},
	&cli.StringFlag{Name: "unauthorized-sae-id", Value: defaultSAEIDs[interfaces.RoleUnauthorized]},
}

func main() {
	app := &cli.App{
		Name:  "kmesim",
		Usage: "Simulated ETSI GS QKD 014 KME for local conformance runs",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the key delivery API over mTLS",
				Flags:  serveFlags,
				Action: serve,
			},
			{
				Name:   "gen-pki",
				Usage:  "generate a development CA, a KME certificate and one identity per SAE",
				Flags:  genPKIFlags,
				Action: genPKI,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func sortedDefaultSAEIDs() []string {
	ids := make([]string, 0, len(defaultSAEIDs))
	for _, id := range defaultSAEIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func loadLimits(path string) (kme.Limits, error) {
	limits := kme.DefaultLimits
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return limits, fmt.Errorf("failed to read limits file: %w", err)
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return limits, fmt.Errorf("failed to parse limits file: %w", err)
	}
	return limits, limits.Validate()
}

func serve(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	limits, err := loadLimits(cCtx.String("limits"))
	if err != nil {
		logger.Error("Invalid limits", "err", err)
		return err
	}

	var saes []interfaces.SAEID
	for _, id := range cCtx.StringSlice("sae-ids") {
		saes = append(saes, interfaces.SAEID(strings.TrimSpace(id)))
	}

	store, err := kme.NewSimpleKME(cCtx.String("kme-id"), saes, limits)
	if err != nil {
		logger.Error("Failed to create KME", "err", err)
		return err
	}

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
	cfg.TLSCertPath = cCtx.String("tls-cert")
	cfg.TLSKeyPath = cCtx.String("tls-key")
	cfg.ClientCAPath = cCtx.String("client-ca")

	handler := kmehandler.NewHandler(store, cCtx.String("base-path"), logger)
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting simulated KME", "listen", cfg.ListenAddr, "basePath", handler.BasePath(), "saes", len(saes))
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func genPKI(cCtx *cli.Context) error {
	dir := cCtx.String("dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create %s: %w", dir, err)
	}

	saeIDs := map[interfaces.Role]string{
		interfaces.RoleMaster:       cCtx.String("master-sae-id"),
		interfaces.RoleSlave:        cCtx.String("slave-sae-id"),
		interfaces.RoleAdditional:   cCtx.String("add-slave-sae-id"),
		interfaces.RoleUnauthorized: cCtx.String("unauthorized-sae-id"),
	}

	ids := make([]string, 0, len(interfaces.Roles))
	for _, role := range interfaces.Roles {
		ids = append(ids, saeIDs[role])
	}

	pki, err := cryptoutils.WriteDevPKI(dir, cCtx.StringSlice("hosts"), ids)
	if err != nil {
		return err
	}

	env, err := writeEnvFile(dir, cCtx.String("base-url"), pki, saeIDs)
	if err != nil {
		return err
	}

	fmt.Printf("root CA:      %s\n", pki.RootCA)
	fmt.Printf("KME cert/key: %s %s\n", pki.ServerCert, pki.ServerKey)
	fmt.Printf("env file:     %s\n", env)
	return nil
}

func writeEnvFile(dir, baseURL string, pki *cryptoutils.DevPKI, saeIDs map[interfaces.Role]string) (string, error) {
	abs := func(p string) string {
		if a, err := filepath.Abs(p); err == nil {
			return a
		}
		return p
	}

	var b strings.Builder
	fmt.Fprintf(&b, "export %s=%s\n", config.EnvBaseServerURL, baseURL)
	fmt.Fprintf(&b, "export %s=%s\n", config.EnvBaseClientURL, baseURL)
	fmt.Fprintf(&b, "export %s=%s\n", config.EnvTLSRootCrt, abs(pki.RootCA))
	for _, role := range interfaces.Roles {
		saeVar, certVar, _ := config.EnvNames(role)
		fmt.Fprintf(&b, "export %s=%s\n", saeVar, saeIDs[role])
		fmt.Fprintf(&b, "export %s=%s\n", certVar, abs(pki.Identities[saeIDs[role]]))
	}

	path := filepath.Join(dir, "etsi014.env")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("could not write env file: %w", err)
	}
	return path, nil
}

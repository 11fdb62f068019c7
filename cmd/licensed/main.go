// SPDX-License-Identifier: MIT

// licensed is the LAN licensing appliance: it holds the machine-bound
// license vault, the capped session pool, and the discovery endpoints.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyphersol/licensed/internal/admission"
	"github.com/cyphersol/licensed/internal/api"
	"github.com/cyphersol/licensed/internal/api/middleware"
	"github.com/cyphersol/licensed/internal/config"
	"github.com/cyphersol/licensed/internal/daemon"
	"github.com/cyphersol/licensed/internal/discovery"
	"github.com/cyphersol/licensed/internal/fingerprint"
	"github.com/cyphersol/licensed/internal/health"
	"github.com/cyphersol/licensed/internal/issuer"
	licdlog "github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/netutil"
	"github.com/cyphersol/licensed/internal/session"
	"github.com/cyphersol/licensed/internal/vault"
	"github.com/cyphersol/licensed/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the real configuration is loaded.
	licdlog.Configure(licdlog.Config{
		Level:   "info",
		Service: "licensed",
		Version: version.Version,
	})
	logger := licdlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Msg("failed to load configuration")
	}

	licdlog.Configure(licdlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version.Version,
	})

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Bool("development", cfg.IsDevelopment()).
		Msg("starting licensed")

	// Machine identity. The raw fingerprint never leaves the process; the
	// issuer and logs only ever see its digest.
	fp := fingerprint.New().Fingerprint()
	digest := sha256.Sum256([]byte(fp))
	deviceInfo := hex.EncodeToString(digest[:])

	artifactPath := cfg.ArtifactPath
	if artifactPath == "" {
		artifactPath = vault.ArtifactPath(cfg.IsDevelopment())
	}

	store := vault.NewStore(artifactPath, fp)
	switch err := store.Load(); {
	case err == nil:
	case errors.Is(err, vault.ErrArtifactMissing):
		logger.Warn().
			Str("event", "startup.unlicensed").
			Msg("booting unlicensed, activate via POST /api/activate-license")
	case errors.Is(err, vault.ErrCorruptOrTampered):
		logger.Error().
			Str("event", "startup.artifact_rejected").
			Str("path", artifactPath).
			Msg("sealed artifact is corrupt or bound to another machine, operator action required")
	default:
		logger.Fatal().
			Err(err).
			Str("event", "startup.artifact_unreadable").
			Msg("sealed artifact could not be read")
	}

	pool := session.NewPool(store, cfg.FlushInterval)

	var issuerClient *issuer.Client
	if cfg.IssuerBaseURL != "" {
		issuerClient = issuer.New(issuer.Config{
			BaseURL:    cfg.IssuerBaseURL,
			APIKey:     cfg.IssuerAPIKey,
			DeviceInfo: deviceInfo,
			Timeout:    cfg.IssuerTimeout,
		})
	} else {
		logger.Warn().
			Str("event", "startup.no_issuer").
			Msg("no issuer configured, activation and resync are disabled")
	}

	gate := admission.New(admission.Config{
		Store:         store,
		StaleAfter:    cfg.StaleAfter,
		MaxSkew:       cfg.MaxSkew,
		Collaborators: gateCollaborators(store, issuerClient),
	})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewArtifactChecker(artifactPath))
	hm.RegisterChecker(health.NewLicenseChecker(store))

	listenPort := portOf(cfg.ListenAddr)

	server := api.New(api.Deps{
		Store:      store,
		Pool:       pool,
		Gate:       gate,
		Issuer:     apiIssuer(issuerClient),
		Health:     http.HandlerFunc(hm.ServeHealth),
		Ready:      http.HandlerFunc(hm.ServeReady),
		ListenPort: listenPort,
		Middleware: middleware.StackConfig{
			EnableMetrics:   true,
			EnableLogging:   true,
			EnableRateLimit: cfg.RateLimitEnabled,
			RateLimitRPM:    cfg.RateLimitRPM,
		},
	})

	deps := daemon.Deps{
		Logger:     licdlog.WithComponent("daemon"),
		APIHandler: server.Routes(),
	}
	if cfg.MetricsAddr != "" {
		deps.MetricsHandler = promhttp.Handler()
		deps.MetricsAddr = cfg.MetricsAddr
	}

	if cfg.DiscoveryEnabled {
		responder, err := discovery.NewResponder(cfg.DiscoveryPort, discovery.ResponderConfig{
			Name:               cfg.LogService,
			LicensePort:        listenPort,
			DatabaseDiscovery:  cfg.DatabaseDiscovery,
			DatabaseInstanceID: cfg.DatabaseInstanceID,
			DatabasePort:       cfg.DatabasePort,
			DatabaseVersion:    cfg.DatabaseVersion,
		})
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "startup.discovery_bind_failed").
				Int("port", cfg.DiscoveryPort).
				Msg("UDP discovery socket could not be bound")
		}
		deps.Responder = responder
	}

	if cfg.MDNSEnabled {
		announcer := discovery.NewAnnouncer(netutil.Hostname())
		if err := announcer.SetReannounceInterval(cfg.ReannounceInterval); err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "startup.mdns_interval_invalid").
				Msg("invalid mDNS re-announce interval")
		}
		if err := announcer.AdvertiseLicenseService(listenPort); err != nil {
			logger.Warn().
				Err(err).
				Str("event", "startup.mdns_advertise_failed").
				Msg("license service not advertised over mDNS")
		}
		if cfg.DatabaseDiscovery {
			if err := announcer.AdvertiseDatabaseService(cfg.DatabaseInstanceID, cfg.DatabasePort, cfg.DatabaseVersion); err != nil {
				logger.Warn().
					Err(err).
					Str("event", "startup.mdns_advertise_failed").
					Msg("database service not advertised over mDNS")
			}
		}
		deps.Announcer = announcer
	}

	mgr, err := daemon.NewManager(config.ParseServerConfig(cfg), deps)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.manager_failed").
			Msg("failed to create daemon manager")
	}

	// LIFO: the gate drains its tampering reports, then the pool flushes the
	// statement counter to the sealed artifact.
	mgr.RegisterShutdownHook("session-pool-flush", func(ctx context.Context) error {
		return pool.Flush()
	})
	mgr.RegisterShutdownHook("admission-gate-drain", gate.Close)

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
	}

	logger.Info().Msg("server exiting")
}

// gateCollaborators binds the admission gate to the issuer client. With no
// issuer configured, staleness rejects and tampering reports are log-only.
func gateCollaborators(store *vault.Store, client *issuer.Client) admission.Collaborators {
	if client == nil {
		return admission.Collaborators{}
	}
	return admission.Collaborators{
		Resync: func(ctx context.Context) error {
			rec, err := client.Resync(ctx, store.Snapshot().LicenseKey)
			if err != nil {
				return err
			}
			if err := store.SetExpiry(rec.ExpiryTimestamp); err != nil {
				return err
			}
			return store.SetServerCurrentTime(rec.CurrentTimestamp)
		},
		ReportTampering: func(ctx context.Context, r admission.Report) {
			client.ReportTampering(ctx, issuer.Report{
				LicenseKey:   store.Snapshot().LicenseKey,
				ObservedUnix: r.ObservedUnix,
				ExpectedUnix: r.ExpectedUnix,
				Path:         r.Path,
			})
		},
	}
}

// apiIssuer adapts the optional concrete client to the api.Issuer interface
// without handing the api package a typed nil.
func apiIssuer(client *issuer.Client) api.Issuer {
	if client == nil {
		return nil
	}
	return client
}

func portOf(listenAddr string) int {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 7890
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return 7890
	}
	return port
}

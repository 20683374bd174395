// Command rampart runs the AI security gateway: the HTTP surface from
// internal/httpapi wired to the detectors, decision combiner, policy
// engine, usage accounting, and the supplemented LLM-proxy path. Its
// startup/shutdown shape — config load, structured logging, TLS setup,
// signal-driven graceful shutdown — follows this codebase's existing
// entry point almost unchanged, generalized from a single relay server
// to this gateway's detector/storage/HTTP wiring.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rampart/internal/authn"
	"rampart/internal/config"
	"rampart/internal/decision"
	"rampart/internal/detect/exfiltration"
	"rampart/internal/detect/injection"
	"rampart/internal/detect/pii"
	"rampart/internal/httpapi"
	"rampart/internal/policy"
	"rampart/internal/ratelimit"
	"rampart/internal/redaction"
	"rampart/internal/router"
	"rampart/internal/store"
	"rampart/internal/telemetry"
	"rampart/internal/toxicity"
	"rampart/internal/usage"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "configs/rampart.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting rampart",
		"version", "0.1.0",
		"listen", cfg.Listen,
		"storage", cfg.Storage.Path,
	)

	if dataDir := filepath.Dir(cfg.Storage.Path); dataDir != "." {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			slog.Error("failed to create data directory", "error", err, "path", dataDir)
			os.Exit(1)
		}
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	sessions, err := authn.NewSessionSigner(cfg.Auth.JWTSecretKey, cfg.AccessTokenTTL())
	if err != nil {
		slog.Error("failed to construct session signer", "error", err)
		os.Exit(1)
	}
	cipher, err := authn.NewCredentialCipher(cfg.Auth.KeyEncryptionSecret)
	if err != nil {
		slog.Error("failed to construct credential cipher", "error", err)
		os.Exit(1)
	}

	keyVerifier := httpapi.NewStoreKeyVerifier(st)
	gate := authn.NewGate(sessions, keyVerifier, []string{
		"/api/v1/health", "/api/v1/health/ready", "/api/v1/health/live", "/api/v1/metrics",
	})

	var limiter ratelimit.Checker
	if cfg.RateLimit.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			slog.Error("failed to connect to rate limit redis", "error", err, "addr", cfg.RateLimit.Redis.Addr)
			os.Exit(1)
		}
		pingCancel()
		defer redisClient.Close()
		limiter = ratelimit.NewDistributed(
			redisClient,
			cfg.RateLimit.Redis.KeyPrefix,
			ratelimit.Limits{PerMinute: cfg.RateLimit.RequestsPerMinute, PerHour: cfg.RateLimit.RequestsPerHour},
			ratelimit.DefaultAuthLimits,
		)
		slog.Info("rate limiting backed by redis", "addr", cfg.RateLimit.Redis.Addr)
	} else {
		limiter = ratelimit.New(
			ratelimit.Limits{PerMinute: cfg.RateLimit.RequestsPerMinute, PerHour: cfg.RateLimit.RequestsPerHour},
			ratelimit.DefaultAuthLimits,
		)
	}

	injDetector := injection.NewDetector(injection.WithFastMode(cfg.Detectors.PromptInjectionFastMode))
	exfilMonitor := exfiltration.NewMonitor()
	combiner := decision.NewCombiner(injDetector, exfilMonitor)

	piiDetector := pii.NewDetector()
	toxScorer := toxicity.NewHeuristicScorer()
	policyEngine := policy.NewEngine(st)
	auditRedactor := redaction.NewPatternRedactor()

	usageWriter := usage.NewWriter(st.DB(), 256)
	defer usageWriter.Close()

	tp, err := telemetry.NewProvider(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	credSource := httpapi.NewCredentialSource(st, cipher)
	llmRouter := router.New(cfg.Providers, credSource)

	handler := httpapi.New(httpapi.Deps{
		Store:        st,
		Gate:         gate,
		Cipher:       cipher,
		Limiter:      limiter,
		Combiner:     combiner,
		PIIDetector:  piiDetector,
		ExfilMonitor: exfilMonitor,
		ToxScorer:    toxScorer,
		ToxThreshold: cfg.Detectors.ToxicityThreshold,
		PolicyEngine: policyEngine,
		UsageWriter:  usageWriter,
		Router:       llmRouter,
		Telemetry:    tp,
		Redactor:     auditRedactor,
		CORSOrigin:   cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := setupTLS(cfg.TLS)
		if err != nil {
			slog.Error("failed to configure TLS", "error", err)
			os.Exit(1)
		}
		httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", cfg.Listen, "tls", cfg.TLS.Enabled)
		var err error
		if cfg.TLS.Enabled {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("server error", "error", err)
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	}

	slog.Info("shutting down gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}

	slog.Info("rampart stopped")
}

// setupTLS configures TLS for the gateway's HTTP server.
func setupTLS(cfg config.TLSConfig) (*tls.Config, error) {
	var cert tls.Certificate
	var err error

	if cfg.AutoCert {
		cert, err = generateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("generating self-signed cert: %w", err)
		}
		slog.Warn("using auto-generated self-signed certificate (development only)")
	} else if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		slog.Info("loaded TLS certificate", "cert", cfg.CertFile, "key", cfg.KeyFile)
	} else {
		return nil, fmt.Errorf("TLS enabled but no certificate configured (set cert_file/key_file or auto_cert)")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// generateSelfSignedCert creates a self-signed certificate for development.
func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Rampart Development"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", "rampart", "*.rampart.local"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})

	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})

	return tls.X509KeyPair(certPEM, keyPEM)
}

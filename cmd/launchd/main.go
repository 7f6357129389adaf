package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"obsidian/config"
	"obsidian/core"
	"obsidian/core/state"
	"obsidian/crypto"
	"obsidian/observability/logging"
	"obsidian/rpc"
	"obsidian/storage"
)

const authorityPassEnv = "OBSIDIAN_AUTHORITY_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("OBSIDIAN_ENV"))
	logger := logging.Setup("launchd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	authorityKey, err := loadAuthorityKey(cfg)
	if err != nil {
		logger.Error("failed to load authority key", slog.Any("error", err))
		os.Exit(1)
	}
	authorityAddr := authorityKey.PubKey().Address()

	node := core.NewNode(state.NewManager(db), logger)

	mintAuthority := authorityAddr
	if raw := strings.TrimSpace(cfg.Token.MintAuthority); raw != "" {
		decoded, err := crypto.DecodeAddress(raw)
		if err != nil {
			logger.Error("invalid mint authority", slog.Any("error", err))
			os.Exit(1)
		}
		mintAuthority = decoded
	}
	var mintAuthorityBytes [20]byte
	copy(mintAuthorityBytes[:], mintAuthority.Bytes())

	if err := node.RegisterToken(&state.TokenMetadata{
		Symbol:        cfg.Token.Symbol,
		Name:          cfg.Token.Name,
		Decimals:      cfg.Token.Decimals,
		MintAuthority: mintAuthorityBytes,
	}); err != nil && err != state.ErrTokenExists {
		logger.Error("failed to register token", slog.Any("error", err))
		os.Exit(1)
	}

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server terminated", slog.Any("error", err))
			}
		}()
	}

	rpcServer := rpc.NewServer(node)
	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- rpcServer.Start(cfg.RPCAddress)
		close(rpcErrCh)
	}()

	if err := waitForRPCStartup(cfg.RPCAddress, rpcErrCh, 5*time.Second); err != nil {
		logger.Error("RPC server failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("launch settlement daemon running",
		slog.String("network", cfg.NetworkName),
		slog.String("authority", authorityAddr.String()),
		slog.String("token", cfg.Token.Symbol))

	if err, ok := <-rpcErrCh; ok && err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadAuthorityKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	if cfg.AuthorityKeystorePath == "" {
		return nil, fmt.Errorf("authority keystore path not configured")
	}
	passphrase := os.Getenv(authorityPassEnv)
	key, err := crypto.LoadFromKeystore(cfg.AuthorityKeystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", cfg.AuthorityKeystorePath, err)
	}
	return key, nil
}

func waitForRPCStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if !ok {
				return fmt.Errorf("RPC server terminated before startup confirmation")
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("RPC server exited before startup confirmation")
		default:
		}

		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err, ok := <-errCh:
			if !ok {
				return fmt.Errorf("RPC server terminated before startup confirmation")
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("RPC server exited before startup confirmation")
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"obsidian/crypto"

	"github.com/BurntSushi/toml"
)

// Token declares the reward token registered into the ledger at startup. The
// mint authority defaults to the daemon's own keystore address when left empty.
type Token struct {
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	Decimals      uint8  `toml:"Decimals"`
	MintAuthority string `toml:"MintAuthority"`
}

type Config struct {
	RPCAddress            string `toml:"RPCAddress"`
	MetricsAddress        string `toml:"MetricsAddress"`
	DataDir               string `toml:"DataDir"`
	NetworkName           string `toml:"NetworkName"`
	AuthorityKeystorePath string `toml:"AuthorityKeystorePath"`
	Token                 Token  `toml:"Token"`
}

// Load loads the configuration from the given path, creating a default file
// and an authority keystore when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes the configuration and rejects unusable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "obsidian-local"
	}
	c.Token.Symbol = strings.ToUpper(strings.TrimSpace(c.Token.Symbol))
	if c.Token.Symbol == "" {
		return fmt.Errorf("config: Token.Symbol required")
	}
	if authority := strings.TrimSpace(c.Token.MintAuthority); authority != "" {
		if _, err := crypto.DecodeAddress(authority); err != nil {
			return fmt.Errorf("config: invalid Token.MintAuthority: %w", err)
		}
	}
	return nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AuthorityKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AuthorityKeystorePath != keystorePath {
		cfg.AuthorityKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./obsidian-data",
		NetworkName:    "obsidian-local",
		Token: Token{
			Symbol:   "OBX",
			Name:     "Obsidian",
			Decimals: 6,
		},
	}
	cfg.AuthorityKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "authority.keystore")
}

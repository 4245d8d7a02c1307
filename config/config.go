package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const (
	// EnvTreasuryKey holds the treasury signing key. It is never read from a file.
	EnvTreasuryKey = "TREASURY_PRIVATE_KEY"
	// EnvProviderURL points the client at the wallet endpoint when the yaml leaves it empty.
	EnvProviderURL = "WALLET_PROVIDER_URL"

	defaultClaimEndpoint   = "http://localhost:8080/api/karma/claim"
	defaultListenAddr      = ":8080"
	defaultStatusAddr      = "127.0.0.1:8787"
	defaultWALDir          = "./wal"
	defaultCertCacheDir    = "./certs"
	defaultPollInterval    = 2 * time.Second
	defaultConfirmTimeout  = 2 * time.Minute
	defaultMonitorInterval = time.Minute
)

// transferMargin is the client's headroom over the backend's confirm timeout.
const transferMargin = time.Minute

// Config is the parsed configuration shared by karma and karmad.
// DirectSigner makes the client sign payouts itself instead of calling the backend.
// TransferTimeout bounds the client's call to the backend and is always longer
// than ConfirmTimeout, so the backend reports first.
type Config struct {
	ProviderURL          string
	ProviderPollInterval time.Duration
	ClaimEndpoint        string
	TreasuryAddress      domain.Address
	DirectSigner         bool
	RPCURL               string
	ListenAddr           string
	StatusAddr           string
	TLSDomains           []string
	CertCacheDir         string
	WALDir               string
	ConfirmTimeout       time.Duration
	TransferTimeout      time.Duration
	MonitorInterval      time.Duration
	Network              domain.NetworkDescriptor
	TreasuryKey          string
}

type ConfigTmp struct {
	ProviderURL          string        `yaml:"provider_url,omitempty"`
	ProviderPollInterval time.Duration `yaml:"provider_poll_interval,omitempty"`
	ClaimEndpoint        string        `yaml:"claim_endpoint,omitempty"`
	TreasuryAddress      string        `yaml:"treasury_address"`
	DirectSignerStr      string        `yaml:"direct_signer,omitempty"`
	RPCURL               string        `yaml:"rpc_url,omitempty"`
	ListenAddr           string        `yaml:"listen_addr,omitempty"`
	StatusAddr           string        `yaml:"status_addr,omitempty"`
	TLSDomains           string        `yaml:"tls_domains,omitempty"`
	CertCacheDir         string        `yaml:"cert_cache_dir,omitempty"`
	WALDir               string        `yaml:"wal_dir,omitempty"`
	ConfirmTimeout       time.Duration `yaml:"confirm_timeout,omitempty"`
	TransferTimeout      time.Duration `yaml:"transfer_timeout,omitempty"`
	MonitorInterval      time.Duration `yaml:"monitor_interval,omitempty"`
	ChainIDStr           string        `yaml:"chain_id,omitempty"`
}

// Get loads the yaml file named by -config, or builds a config from defaults and the environment.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *path != "" {
		return Load(*path)
	}
	return FromTmp(ConfigTmp{})
}

// Load reads and parses a yaml config file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
	}
	return FromTmp(tmp)
}

// Save writes c as yaml. Secrets are not written.
func Save(path string, c ConfigTmp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FromTmp validates raw values and fills defaults.
func FromTmp(c ConfigTmp) (Config, error) {
	cfg := Config{
		ProviderURL:          strings.TrimSpace(c.ProviderURL),
		ProviderPollInterval: c.ProviderPollInterval,
		ClaimEndpoint:        c.ClaimEndpoint,
		RPCURL:               c.RPCURL,
		ListenAddr:           c.ListenAddr,
		StatusAddr:           c.StatusAddr,
		CertCacheDir:         c.CertCacheDir,
		WALDir:               c.WALDir,
		ConfirmTimeout:       c.ConfirmTimeout,
		TransferTimeout:      c.TransferTimeout,
		MonitorInterval:      c.MonitorInterval,
		Network:              domain.ArbitrumSepolia,
		TreasuryKey:          strings.TrimSpace(os.Getenv(EnvTreasuryKey)),
	}

	if cfg.ProviderURL == "" {
		cfg.ProviderURL = strings.TrimSpace(os.Getenv(EnvProviderURL))
	}
	if cfg.ProviderPollInterval <= 0 {
		cfg.ProviderPollInterval = defaultPollInterval
	}
	if cfg.ClaimEndpoint == "" {
		cfg.ClaimEndpoint = defaultClaimEndpoint
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = defaultStatusAddr
	}
	if cfg.CertCacheDir == "" {
		cfg.CertCacheDir = defaultCertCacheDir
	}
	if cfg.WALDir == "" {
		cfg.WALDir = defaultWALDir
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = cfg.ConfirmTimeout + transferMargin
	}
	if cfg.TransferTimeout <= cfg.ConfirmTimeout {
		return Config{}, fmt.Errorf("incorrect 'transfer_timeout' param in yaml config: %s must exceed confirm_timeout %s",
			cfg.TransferTimeout, cfg.ConfirmTimeout)
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = defaultMonitorInterval
	}

	if c.TreasuryAddress != "" {
		if !domain.IsValidAddress(c.TreasuryAddress) {
			return Config{}, fmt.Errorf("incorrect 'treasury_address' param in yaml config: %s", c.TreasuryAddress)
		}
		cfg.TreasuryAddress = domain.NewAddress(c.TreasuryAddress)
	}

	if c.DirectSignerStr != "" {
		direct, err := strconv.ParseBool(c.DirectSignerStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'direct_signer' param in yaml config (must be true or false), error: %w", err)
		}
		cfg.DirectSigner = direct
	}

	if c.ChainIDStr != "" {
		id, err := strconv.ParseUint(c.ChainIDStr, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'chain_id' param in yaml config (must be an integer), error: %w", err)
		}
		network, ok := networks[id]
		if !ok {
			return Config{}, fmt.Errorf("unsupported 'chain_id' in yaml config: %d", id)
		}
		cfg.Network = network
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = cfg.Network.RPCURL
	}

	for _, d := range strings.Split(c.TLSDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			cfg.TLSDomains = append(cfg.TLSDomains, d)
		}
	}

	return cfg, nil
}

var networks = map[uint64]domain.NetworkDescriptor{
	domain.ArbitrumSepolia.ChainID: domain.ArbitrumSepolia,
	domain.EthereumMainnet.ChainID: domain.EthereumMainnet,
}

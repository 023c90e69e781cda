package server

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/distributor/pkg/tree"
	"github.com/rakurai-io/rakurai/distributor/pkg/watcher"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"golang.org/x/time/rate"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// CollectionView is the read side of the watcher.
type CollectionView interface {
	Ready() bool
	Snapshot() *watcher.Snapshot
}

type Config struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	View                  CollectionView
	Trees                 []*tree.Tree
	DistributionProgramID solana.PublicKey

	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// RateLimit and RateBurst bound /v1 requests per client IP.
	RateLimit rate.Limit
	RateBurst int
}

func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.View == nil {
		return errors.New("collection view is required")
	}
	if cfg.DistributionProgramID.IsZero() {
		cfg.DistributionProgramID = pda.DistributionProgramID
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Every(time.Minute / 300)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 50
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return nil
}

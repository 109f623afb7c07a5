package penalty

import (
	"errors"
	"fmt"
	"sync"

	"github.com/OlendLabs/olend-risk/native/safemath"
)

var ErrInvalidConfig = errors.New("penalty: invalid distribution config")

// Config defines the bounded four-way penalty split in basis points. The
// three explicit rates must sum to at most 10 000; any headroom below the full
// 10 000 flows to the borrower-protection bucket when the flag is enabled and
// to the platform bucket otherwise.
type Config struct {
	LiquidatorBps      uint64
	PlatformBps        uint64
	InsuranceBps       uint64
	BorrowerProtection bool
}

// Validate rejects rate sets that overcommit the penalty.
func (c Config) Validate() error {
	total := c.LiquidatorBps + c.PlatformBps + c.InsuranceBps
	if total > safemath.BasisPoints {
		return fmt.Errorf("%w: rates sum to %d bps", ErrInvalidConfig, total)
	}
	return nil
}

// Distribution is the exact split of one penalty amount. The four shares
// always sum to the distributed total.
type Distribution struct {
	Liquidator         uint64
	Platform           uint64
	Insurance          uint64
	BorrowerProtection uint64
}

// Total returns the sum of the four shares.
func (d Distribution) Total() uint64 {
	return d.Liquidator + d.Platform + d.Insurance + d.BorrowerProtection
}

// Distributor splits liquidation penalties among the configured stakeholders.
type Distributor struct {
	mu  sync.RWMutex
	cfg Config
}

// NewDistributor constructs a distributor with a validated configuration.
func NewDistributor(cfg Config) (*Distributor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Distributor{cfg: cfg}, nil
}

// SetConfig swaps the split configuration; invalid rates are rejected before
// being applied.
func (d *Distributor) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	return nil
}

// Config returns the split configuration in effect.
func (d *Distributor) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Distribute splits the penalty as total×rate/10000 per bucket. The integer
// truncation remainder is assigned to the platform reserve so the shares sum
// exactly to the input. When borrower protection is disabled its share folds
// into the platform bucket as well.
func (d *Distributor) Distribute(total uint64) (Distribution, error) {
	d.mu.RLock()
	cfg := d.cfg
	d.mu.RUnlock()

	liquidator, err := safemath.Percentage(total, cfg.LiquidatorBps)
	if err != nil {
		return Distribution{}, err
	}
	platform, err := safemath.Percentage(total, cfg.PlatformBps)
	if err != nil {
		return Distribution{}, err
	}
	insurance, err := safemath.Percentage(total, cfg.InsuranceBps)
	if err != nil {
		return Distribution{}, err
	}

	var borrower uint64
	gapBps := safemath.BasisPoints - (cfg.LiquidatorBps + cfg.PlatformBps + cfg.InsuranceBps)
	if cfg.BorrowerProtection && gapBps > 0 {
		borrower, err = safemath.Percentage(total, gapBps)
		if err != nil {
			return Distribution{}, err
		}
	}

	allocated := liquidator + platform + insurance + borrower
	remainder, err := safemath.Sub(total, allocated)
	if err != nil {
		return Distribution{}, err
	}
	platform += remainder

	return Distribution{
		Liquidator:         liquidator,
		Platform:           platform,
		Insurance:          insurance,
		BorrowerProtection: borrower,
	}, nil
}

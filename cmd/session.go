package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/amm"
	"github.com/Mohsinsiddi/curvesim/internal/config"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrNoAccount is returned when a command needs an account and neither
// --account nor a default wallet is set.
var ErrNoAccount = errors.New("no account given and no default wallet set")

// session is the persisted simulation: the ledger, its pool and the wallet
// book used to name accounts.
type session struct {
	wallets *wallet.Manager
	ledger  *ledger.Ledger
	pool    *amm.Pool // nil when config.pool is empty
}

func newWalletManager() *wallet.Manager {
	return wallet.NewManager(wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())))
}

// openSession restores the saved state, or starts a fresh ledger from the
// config when nothing is saved yet.
func openSession() (*session, error) {
	s := &session{wallets: newWalletManager()}

	poolSnap, err := cfg.LoadPool()
	switch {
	case err == nil:
		s.pool = amm.Restore(*poolSnap, amm.WithLogger(logger))
	case errors.Is(err, config.ErrNoState):
		if cfg.Pool != "" {
			addr, err := s.wallets.Resolve(cfg.Pool)
			if err != nil {
				return nil, fmt.Errorf("pool: %w", err)
			}
			s.pool = amm.New(addr, amm.WithLogger(logger))
		}
	default:
		return nil, fmt.Errorf("reading pool state: %w", err)
	}

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if s.pool != nil {
		opts = append(opts, ledger.WithPool(s.pool))
	}

	snap, err := cfg.LoadState()
	switch {
	case err == nil:
		s.ledger, err = ledger.FromSnapshot(*snap, opts...)
		if err != nil {
			return nil, fmt.Errorf("restoring ledger: %w", err)
		}
		logger.Debug("ledger restored", zap.Int("events", len(snap.Events)))
	case errors.Is(err, config.ErrNoState):
		lc, err := ledgerConfig(s.wallets)
		if err != nil {
			return nil, err
		}
		if s.ledger, err = ledger.New(lc, opts...); err != nil {
			return nil, err
		}
		logger.Debug("fresh ledger", zap.String("owner", lc.Owner.Hex()))
	default:
		return nil, fmt.Errorf("reading ledger state: %w", err)
	}
	return s, nil
}

// ledgerConfig builds the launch configuration from cfg.
func ledgerConfig(wallets *wallet.Manager) (ledger.Config, error) {
	if err := cfg.Validate(); err != nil {
		return ledger.Config{}, err
	}
	params, err := cfg.Params()
	if err != nil {
		return ledger.Config{}, err
	}
	lc := ledger.Config{
		Params:           params,
		Rates:            cfg.Rates(),
		MigrationPercent: cfg.MigrationPercent,
	}
	for _, role := range []struct {
		key string
		ref string
		dst *common.Address
	}{
		{"owner", cfg.Owner, &lc.Owner},
		{"fee_recipient", cfg.FeeRecipient, &lc.FeeRecipient},
		{"treasury", cfg.Treasury, &lc.Treasury},
		{"router", cfg.Router, &lc.Router},
	} {
		addr, err := wallets.Resolve(role.ref)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("%s: %w", role.key, err)
		}
		*role.dst = addr
	}
	return lc, nil
}

// save persists the ledger and pool.
func (s *session) save() error {
	if err := cfg.SaveState(s.ledger.Snapshot()); err != nil {
		return fmt.Errorf("saving ledger state: %w", err)
	}
	if s.pool != nil {
		if err := cfg.SavePool(s.pool.Snapshot()); err != nil {
			return fmt.Errorf("saving pool state: %w", err)
		}
	}
	return nil
}

// account resolves ref, falling back to the default account. Names used
// for the first time are added to the wallet book so later output can show
// them.
func (s *session) account(ref string) (common.Address, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = cfg.DefaultAccount
	}
	if ref == "" {
		if w := s.wallets.Default(); w != nil {
			ref = w.Name
		}
	}
	if ref == "" {
		return common.Address{}, ErrNoAccount
	}
	addr, err := s.wallets.Resolve(ref)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(ref) {
		if _, err := s.wallets.Get(ref); errors.Is(err, wallet.ErrWalletNotFound) {
			if _, err := s.wallets.AddNamed(ref); err != nil {
				logger.Warn("could not record account", zap.String("name", ref), zap.Error(err))
			}
		}
	}
	return addr, nil
}

// owner resolves ref, falling back to the current ledger owner.
func (s *session) owner(ref string) (common.Address, error) {
	if strings.TrimSpace(ref) == "" {
		return s.ledger.Owner(), nil
	}
	return s.wallets.Resolve(ref)
}

// label names addr by wallet, then by configured role.
func (s *session) label(addr common.Address) string {
	for _, w := range s.wallets.List() {
		if w.Addr() == addr {
			return w.Name
		}
	}
	for _, ref := range []string{cfg.Owner, cfg.Treasury, cfg.Router, cfg.Pool, cfg.FeeRecipient} {
		if ref != "" && !common.IsHexAddress(ref) && wallet.Derive(ref) == addr {
			return ref
		}
	}
	return s.wallets.Label(addr)
}

// named resolves ref like account and also returns its display label.
func (s *session) named(ref string) (common.Address, string, error) {
	addr, err := s.account(ref)
	if err != nil {
		return addr, "", err
	}
	return addr, s.label(addr), nil
}

// errLine renders err for the terminal, leading with the contract revert
// string when there is one.
func errLine(err error) string {
	reason := ledger.Reason(err)
	if reason != "" && reason != err.Error() {
		return ui.Err(reason) + "\n  " + ui.Meta(err.Error())
	}
	return ui.Err(err.Error())
}

package session

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/goldium-labs/goldium/service/balance"
	"github.com/goldium-labs/goldium/service/config"
	"github.com/goldium-labs/goldium/service/submit"
	"github.com/goldium-labs/goldium/service/wallet/connector"
)

// ConfigFrom derives the component settings from the application config.
// Unset program accounts stay zero and make the operations that need them
// fail at submit time.
func ConfigFrom(cfg *config.Config) (Config, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.GoldMintAddress)
	if err != nil {
		return Config{}, fmt.Errorf("invalid GOLD mint %q: %w", cfg.GoldMintAddress, err)
	}
	vault, err := optionalKey("stake vault", cfg.StakeVaultAddress)
	if err != nil {
		return Config{}, err
	}
	treasury, err := optionalKey("swap treasury", cfg.SwapTreasuryAddress)
	if err != nil {
		return Config{}, err
	}
	if cfg.GoldDecimals < 0 || cfg.GoldDecimals > 12 {
		return Config{}, fmt.Errorf("invalid GOLD decimals %d", cfg.GoldDecimals)
	}

	return Config{
		Connector: connector.Config{SwitchDelay: cfg.WalletSwitchDelay},
		Poller: balance.Config{
			Interval:   cfg.BalancePollInterval,
			MaxBackoff: cfg.BalanceMaxBackoff,
			GoldMint:   mint,
		},
		Submit: submit.Config{
			GoldMint:     mint,
			GoldDecimals: uint8(cfg.GoldDecimals),
			StakeVault:   vault,
			SwapTreasury: treasury,
			SwapRate:     cfg.SwapRate,
			PollInterval: cfg.ConfirmPollInterval,
			MaxAttempts:  cfg.ConfirmMaxAttempts,
		},
	}, nil
}

func optionalKey(name, s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s address %q: %w", name, s, err)
	}
	return pk, nil
}

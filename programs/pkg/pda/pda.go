package pda

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	SeedMultisigConfig   = []byte("CONFIG_ACCOUNT")
	SeedMultisigAccount  = []byte("MULTISIG_ACCOUNT")
	SeedActivationConfig = []byte("ACTIVATION_CONFIG_ACCOUNT")
	SeedActivation       = []byte("RAKURAI_ACTIVATION_ACCOUNT")

	SeedDistributionConfig = []byte("RD_CONFIG_ACCOUNT")
	SeedRewardCollection   = []byte("REWARD_COLLECTION_ACCOUNT")
	SeedClaimStatus        = []byte("CLAIM_STATUS")
)

// Deployed program IDs.
var (
	MultisigProgramID     = solana.MustPublicKeyFromBase58("2Q7DK4qWRAQvYNseZ3UnWLQYjZFgyRJurP7NJDvDCusF")
	ActivationProgramID   = solana.MustPublicKeyFromBase58("pmQHMpnpA534JmxEdwY3ADfwDBFmy5my3CeutHM2QTt")
	DistributionProgramID = solana.MustPublicKeyFromBase58("A37zgM34Q43gKAxBWQ9zSbQRRhjPqGK8jM49H7aWqNVB")
)

// EpochSeed encodes an epoch as the little-endian seed used by collection accounts.
func EpochSeed(epoch uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, epoch)
	return b
}

// Find derives the canonical address and bump for seed followed by keys.
func Find(programID solana.PublicKey, seed []byte, keys ...[]byte) (solana.PublicKey, uint8, error) {
	seeds := make([][]byte, 0, len(keys)+1)
	seeds = append(seeds, seed)
	seeds = append(seeds, keys...)
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive program address: %w", err)
	}
	return addr, bump, nil
}

// Verify reports whether addr is the address derived from seeds and bump.
func Verify(programID, addr solana.PublicKey, bump uint8, seeds ...[]byte) bool {
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, []byte{bump})
	derived, err := solana.CreateProgramAddress(withBump, programID)
	if err != nil {
		return false
	}
	return derived.Equals(addr)
}

func DeriveMultisigConfig(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedMultisigConfig)
}

func DeriveMultisigAccount(programID, validatorIdentity solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedMultisigAccount, validatorIdentity.Bytes())
}

func DeriveActivationConfig(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedActivationConfig)
}

func DeriveActivationAccount(programID, validatorIdentity solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedActivation, validatorIdentity.Bytes())
}

func DeriveDistributionConfig(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedDistributionConfig)
}

func DeriveRewardCollection(programID, voteAccount solana.PublicKey, epoch uint64) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedRewardCollection, voteAccount.Bytes(), EpochSeed(epoch))
}

func DeriveClaimStatus(programID, claimant, collection solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Find(programID, SeedClaimStatus, claimant.Bytes(), collection.Bytes())
}

package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestRakurai_PDA_Derive(t *testing.T) {
	t.Parallel()

	vote := solana.NewWallet().PublicKey()
	claimant := solana.NewWallet().PublicKey()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		a1, b1, err := DeriveRewardCollection(DistributionProgramID, vote, 42)
		require.NoError(t, err)
		a2, b2, err := DeriveRewardCollection(DistributionProgramID, vote, 42)
		require.NoError(t, err)
		require.Equal(t, a1, a2)
		require.Equal(t, b1, b2)
	})

	t.Run("epoch changes address", func(t *testing.T) {
		t.Parallel()
		a1, _, err := DeriveRewardCollection(DistributionProgramID, vote, 42)
		require.NoError(t, err)
		a2, _, err := DeriveRewardCollection(DistributionProgramID, vote, 43)
		require.NoError(t, err)
		require.NotEqual(t, a1, a2)
	})

	t.Run("program id changes address", func(t *testing.T) {
		t.Parallel()
		a1, _, err := DeriveMultisigConfig(MultisigProgramID)
		require.NoError(t, err)
		a2, _, err := DeriveActivationConfig(MultisigProgramID)
		require.NoError(t, err)
		a3, _, err := DeriveMultisigConfig(ActivationProgramID)
		require.NoError(t, err)
		require.NotEqual(t, a1, a2)
		require.NotEqual(t, a1, a3)
	})

	t.Run("matches raw find program address", func(t *testing.T) {
		t.Parallel()
		collection, _, err := DeriveRewardCollection(DistributionProgramID, vote, 1)
		require.NoError(t, err)
		got, gotBump, err := DeriveClaimStatus(DistributionProgramID, claimant, collection)
		require.NoError(t, err)
		want, wantBump, err := solana.FindProgramAddress([][]byte{[]byte("CLAIM_STATUS"), claimant.Bytes(), collection.Bytes()}, DistributionProgramID)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, wantBump, gotBump)
	})
}

func TestRakurai_PDA_Verify(t *testing.T) {
	t.Parallel()

	identity := solana.NewWallet().PublicKey()
	addr, bump, err := DeriveActivationAccount(ActivationProgramID, identity)
	require.NoError(t, err)

	require.True(t, Verify(ActivationProgramID, addr, bump, SeedActivation, identity.Bytes()))
	require.False(t, Verify(ActivationProgramID, addr, bump, SeedMultisigAccount, identity.Bytes()))
	require.False(t, Verify(MultisigProgramID, addr, bump, SeedActivation, identity.Bytes()))
}

func TestRakurai_PDA_EpochSeed(t *testing.T) {
	t.Parallel()
	require.Equal(t, []byte{0x2a, 0, 0, 0, 0, 0, 0, 0}, EpochSeed(42))
	require.Equal(t, []byte{0, 1, 0, 0, 0, 0, 0, 0}, EpochSeed(256))
}

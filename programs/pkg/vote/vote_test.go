package vote

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/ledger"
	rakuraitesting "github.com/rakurai-io/rakurai/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func TestRakurai_Vote_LedgerOracle(t *testing.T) {
	t.Parallel()

	l, err := ledger.New(ledger.Config{Logger: rakuraitesting.NewLogger(), Clock: ledger.NewManualClock(1)})
	require.NoError(t, err)

	identity := solana.NewWallet().PublicKey()
	voteKey := solana.NewWallet().PublicKey()
	notVote := solana.NewWallet().PublicKey()
	l.SetAccount(ledger.Account{Key: voteKey, Owner: solana.VoteProgramID, Lamports: 1, Data: EncodeVoteAccountData(identity, solana.NewWallet().PublicKey())})
	l.SetAccount(ledger.Account{Key: notVote, Owner: solana.SystemProgramID, Lamports: 1, Data: EncodeVoteAccountData(identity, identity)})

	err = l.Execute(func(tx *ledger.Tx) error {
		oracle := LedgerOracle{Accounts: tx}

		got, err := oracle.NodeIdentity(voteKey)
		require.NoError(t, err)
		require.Equal(t, identity, got)

		_, err = oracle.NodeIdentity(notVote)
		require.ErrorIs(t, err, ErrNotVoteAccount)

		_, err = oracle.NodeIdentity(solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestRakurai_Vote_NodeIdentityFromData(t *testing.T) {
	t.Parallel()

	_, err := NodeIdentityFromData(make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidData)

	identity := solana.NewWallet().PublicKey()
	got, err := NodeIdentityFromData(EncodeVoteAccountData(identity, solana.PublicKey{}))
	require.NoError(t, err)
	require.Equal(t, identity, got)
}

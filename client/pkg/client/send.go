package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// Send builds a transaction from ixs paid for by the first signer, signs it
// with signers and submits it. Submission is not retried so a transaction is
// never broadcast twice by this client.
func (c *Client) Send(ctx context.Context, signers []solana.PrivateKey, ixs ...solana.Instruction) (solana.Signature, error) {
	if len(signers) == 0 {
		return solana.Signature{}, errors.New("at least one signer is required")
	}
	if len(ixs) == 0 {
		return solana.Signature{}, errors.New("at least one instruction is required")
	}

	blockhash, err := call(ctx, c, "getLatestBlockhash", func(ctx context.Context) (*solanarpc.GetLatestBlockhashResult, error) {
		return c.cfg.RPC.GetLatestBlockhash(ctx, c.cfg.Commitment)
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if blockhash == nil || blockhash.Value == nil {
		return solana.Signature{}, errors.New("latest blockhash missing from response")
	}

	tx, err := solana.NewTransaction(ixs, blockhash.Value.Blockhash, solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return solana.Signature{}, err
		}
	}
	start := time.Now()
	sig, err := c.cfg.RPC.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: c.cfg.Commitment,
	})
	observeRequest("sendTransaction", time.Since(start), err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	c.log.Info("client: transaction sent", "signature", sig, "instructions", len(ixs))
	return sig, nil
}

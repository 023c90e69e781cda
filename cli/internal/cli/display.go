package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rakurai-io/rakurai/client/pkg/client"
	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

// fields prints a titled block of aligned name/value rows.
type fields struct {
	w *tabwriter.Writer
}

func section(out io.Writer, title string) *fields {
	fmt.Fprintln(out, title)
	return &fields{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
}

func (f *fields) add(name string, value any) *fields {
	fmt.Fprintf(f.w, "  %s:\t%v\n", name, value)
	return f
}

func (f *fields) flush() {
	_ = f.w.Flush()
}

func encodeHash(h *state.Hash) string {
	if h == nil {
		return "none"
	}
	return base58.Encode(h[:])
}

func optionalKey(pk *solana.PublicKey) string {
	if pk == nil {
		return "none"
	}
	return pk.String()
}

func printApprovalConfig(out io.Writer, v approval.Variant, key solana.PublicKey, cfg *state.ApprovalConfig) {
	section(out, fmt.Sprintf("%s config account", v)).
		add("Address", key).
		add("Authority", cfg.Authority).
		add("Block builder authority", cfg.BlockBuilderAuthority).
		add("Commission (bps)", cfg.BlockBuilderCommissionBps).
		add("Commission account", cfg.BlockBuilderCommissionAccount).
		add("Bump", cfg.Bump).
		flush()
}

func printApprovalAccount(out io.Writer, v approval.Variant, key solana.PublicKey, a *approval.Account) {
	st := approval.StateOf(a)
	phase := st.Phase.String()
	if st.Phase == approval.PhasePending {
		phase = fmt.Sprintf("%s (proposed by %s)", phase, st.ProposedBy)
	}

	f := section(out, fmt.Sprintf("%s account", v)).
		add("Address", key).
		add("State", phase).
		add("Enabled", a.IsEnabled).
		add("Validator authority", a.ValidatorAuthority).
		add("Validator commission (bps)", a.ValidatorCommissionBps).
		add("Block builder commission (bps)", a.BlockBuilderCommissionBps).
		add("Proposer", optionalKey(a.Proposer))
	if v == approval.Multisig {
		f.add("Vote account", a.ValidatorVoteAccount).
			add("Block builder authority", a.BlockBuilderAuthority).
			add("Block builder commission account", a.BlockBuilderCommissionAccount)
	} else {
		f.add("Hash", encodeHash(a.Hash))
	}
	f.add("Bump", a.Bump).flush()
}

func printCollection(out io.Writer, epoch uint64, c *client.Collection) {
	rc := c.Account
	f := section(out, "Reward collection account").
		add("Address", c.Address).
		add("Vote account", rc.ValidatorVoteAccount).
		add("Creation epoch", rc.CreationEpoch).
		add("Expires at epoch", rc.ExpiresAt).
		add("Expired", epoch > rc.ExpiresAt).
		add("Balance (lamports)", c.Lamports).
		add("Validator commission (bps)", rc.ValidatorCommissionBps).
		add("Rakurai commission (bps)", rc.RakuraiCommissionBps).
		add("Rakurai commission account", rc.RakuraiCommissionAccount).
		add("Root upload authority", rc.MerkleRootUploadAuthority).
		add("Initializer", rc.Initializer)
	if m := rc.MerkleRoot; m != nil {
		f.add("Merkle root", base58.Encode(m.Root[:])).
			add("Max total claim", m.MaxTotalClaim).
			add("Max nodes", m.MaxNumNodes).
			add("Total claimed", m.TotalFundsClaimed).
			add("Nodes claimed", m.NumNodesClaimed)
	} else {
		f.add("Merkle root", "not uploaded")
	}
	f.flush()
}

package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/rakurai-io/rakurai/distributor/pkg/tree"
	"github.com/rakurai-io/rakurai/distributor/pkg/watcher"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
)

type CollectionResponse struct {
	Address                   string  `json:"address"`
	VoteAccount               string  `json:"vote_account"`
	CreationEpoch             uint64  `json:"creation_epoch"`
	ExpiresAt                 uint64  `json:"expires_at"`
	State                     string  `json:"state"`
	Lamports                  uint64  `json:"lamports"`
	ValidatorCommissionBps    uint16  `json:"validator_commission_bps"`
	RakuraiCommissionBps      uint16  `json:"rakurai_commission_bps"`
	RakuraiCommissionAccount  string  `json:"rakurai_commission_account"`
	MerkleRootUploadAuthority string  `json:"merkle_root_upload_authority"`
	MerkleRoot                *string `json:"merkle_root,omitempty"`
	MaxTotalClaim             uint64  `json:"max_total_claim"`
	MaxNumNodes               uint64  `json:"max_num_nodes"`
	TotalFundsClaimed         uint64  `json:"total_funds_claimed"`
	NumNodesClaimed           uint64  `json:"num_nodes_claimed"`
	HasTree                   bool    `json:"has_tree"`
}

type CollectionsResponse struct {
	Epoch       uint64               `json:"epoch"`
	RefreshedAt string               `json:"refreshed_at"`
	Collections []CollectionResponse `json:"collections"`
}

type TreeResponse struct {
	Collection    string `json:"collection"`
	VoteAccount   string `json:"vote_account"`
	Epoch         uint64 `json:"epoch"`
	MerkleRoot    string `json:"merkle_root"`
	MaxTotalClaim uint64 `json:"max_total_claim"`
	MaxNumNodes   uint64 `json:"max_num_nodes"`
}

type ProofResponse struct {
	Collection  string   `json:"collection"`
	VoteAccount string   `json:"vote_account"`
	Epoch       uint64   `json:"epoch"`
	Claimant    string   `json:"claimant"`
	Amount      uint64   `json:"amount"`
	Proof       []string `json:"proof"`
	MerkleRoot  string   `json:"merkle_root"`
	ClaimStatus string   `json:"claim_status"`
	// RootUploaded is true once the collection's on-chain root equals the
	// tree's root, the precondition for claiming.
	RootUploaded bool `json:"root_uploaded"`
	Claimed      bool `json:"claimed"`
}

func (s *Server) listTreesHandler(w http.ResponseWriter, _ *http.Request) {
	out := make([]TreeResponse, 0, len(s.trees))
	for addr, t := range s.trees {
		out = append(out, TreeResponse{
			Collection:    addr.String(),
			VoteAccount:   t.VoteAccount.String(),
			Epoch:         t.Epoch,
			MerkleRoot:    tree.EncodeHash(t.Root),
			MaxTotalClaim: t.MaxTotalClaim,
			MaxNumNodes:   t.MaxNumNodes,
		})
	}
	slices.SortFunc(out, func(a, b TreeResponse) int { return strings.Compare(a.Collection, b.Collection) })
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) listCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	var filter watcher.CollectionState
	if v := r.URL.Query().Get("state"); v != "" {
		filter = watcher.CollectionState(v)
		if !validState(filter) {
			writeError(w, http.StatusBadRequest, "invalid_state", "unknown collection state "+v)
			return
		}
	}
	var vote *solana.PublicKey
	if v := r.URL.Query().Get("vote_account"); v != "" {
		pk, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vote_account", err.Error())
			return
		}
		vote = &pk
	}

	resp := CollectionsResponse{
		Epoch:       snap.Epoch,
		RefreshedAt: snap.At.Format("2006-01-02T15:04:05.000Z07:00"),
		Collections: []CollectionResponse{},
	}
	for _, c := range snap.Collections {
		if filter != "" && c.State != filter {
			continue
		}
		if vote != nil && c.Account.ValidatorVoteAccount != *vote {
			continue
		}
		resp.Collections = append(resp.Collections, s.collectionResponse(c))
	}
	slices.SortFunc(resp.Collections, func(a, b CollectionResponse) int { return strings.Compare(a.Address, b.Address) })
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getCollectionHandler(w http.ResponseWriter, r *http.Request) {
	address, ok := pathKey(w, r, "address")
	if !ok {
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	c, ok := snap.Collection(address)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "reward collection not found")
		return
	}
	s.writeJSON(w, http.StatusOK, s.collectionResponse(c))
}

func (s *Server) getProofHandler(w http.ResponseWriter, r *http.Request) {
	address, ok := pathKey(w, r, "address")
	if !ok {
		return
	}
	claimant, ok := pathKey(w, r, "claimant")
	if !ok {
		return
	}

	t, ok := s.trees[address]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no tree loaded for collection")
		return
	}
	node, ok := t.Node(claimant)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "claimant not in tree")
		return
	}
	claimStatus, _, err := pda.DeriveClaimStatus(s.cfg.DistributionProgramID, claimant, address)
	if err != nil {
		s.log.Error("server: failed to derive claim status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to derive claim status address")
		return
	}

	resp := ProofResponse{
		Collection:  address.String(),
		VoteAccount: t.VoteAccount.String(),
		Epoch:       t.Epoch,
		Claimant:    claimant.String(),
		Amount:      node.Amount,
		Proof:       tree.EncodeProof(node.Proof),
		MerkleRoot:  tree.EncodeHash(t.Root),
		ClaimStatus: claimStatus.String(),
	}
	if snap := s.cfg.View.Snapshot(); snap != nil {
		if c, ok := snap.Collection(address); ok && c.Account.MerkleRoot != nil {
			resp.RootUploaded = c.Account.MerkleRoot.Root == t.Root
		}
		if cs, ok := snap.ClaimStatus(claimStatus); ok {
			resp.Claimed = cs.Account.IsClaimed
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) snapshot(w http.ResponseWriter) (*watcher.Snapshot, bool) {
	snap := s.cfg.View.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "collection snapshot not available yet")
		return nil, false
	}
	return snap, true
}

func (s *Server) collectionResponse(c watcher.Collection) CollectionResponse {
	rc := c.Account
	out := CollectionResponse{
		Address:                   c.Address.String(),
		VoteAccount:               rc.ValidatorVoteAccount.String(),
		CreationEpoch:             rc.CreationEpoch,
		ExpiresAt:                 rc.ExpiresAt,
		State:                     string(c.State),
		Lamports:                  c.Lamports,
		ValidatorCommissionBps:    rc.ValidatorCommissionBps,
		RakuraiCommissionBps:      rc.RakuraiCommissionBps,
		RakuraiCommissionAccount:  rc.RakuraiCommissionAccount.String(),
		MerkleRootUploadAuthority: rc.MerkleRootUploadAuthority.String(),
	}
	if m := rc.MerkleRoot; m != nil {
		root := tree.EncodeHash(m.Root)
		out.MerkleRoot = &root
		out.MaxTotalClaim = m.MaxTotalClaim
		out.MaxNumNodes = m.MaxNumNodes
		out.TotalFundsClaimed = m.TotalFundsClaimed
		out.NumNodesClaimed = m.NumNodesClaimed
	}
	_, out.HasTree = s.trees[c.Address]
	return out
}

func pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, "invalid "+name+": "+err.Error())
		return solana.PublicKey{}, false
	}
	return pk, true
}

func validState(st watcher.CollectionState) bool {
	switch st {
	case watcher.StateCollecting, watcher.StateAwaitingRoot, watcher.StateClaimable, watcher.StateClosable:
		return true
	}
	return false
}

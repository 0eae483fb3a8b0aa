package txmerge_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/txmerge"
)

func tx(hash string, status entity.MessageStatus) *entity.BridgeTransaction {
	return &entity.BridgeTransaction{
		Hash:        common.HexToHash(hash),
		MsgHash:     common.HexToHash(hash + "ff"),
		SrcChainID:  1,
		DestChainID: 167000,
		MsgStatus:   status,
	}
}

func TestMergeAndCaptureOutdated(t *testing.T) {
	t.Parallel()

	a := tx("0xa", entity.MessageStatusNew)
	localB := tx("0xb", entity.MessageStatusNew)
	relayerB := tx("0xb", entity.MessageStatusDone)
	c := tx("0xc", entity.MessageStatusRetriable)

	res := txmerge.MergeAndCaptureOutdated(
		[]*entity.BridgeTransaction{a, localB},
		[]*entity.BridgeTransaction{relayerB, c},
	)
	require.Equal(t, []*entity.BridgeTransaction{a, relayerB, c}, res.Merged)
	require.Equal(t, []*entity.BridgeTransaction{localB}, res.OutdatedLocal)
	require.Same(t, relayerB, res.Merged[1])
}

func TestMergeAndCaptureOutdated_Idempotent(t *testing.T) {
	t.Parallel()

	local := []*entity.BridgeTransaction{tx("0x1", 0), tx("0x2", 0), tx("0x3", 0)}
	relayer := []*entity.BridgeTransaction{tx("0x2", 2), tx("0x4", 1), tx("0x4", 2)}

	first := txmerge.MergeAndCaptureOutdated(local, relayer)
	second := txmerge.MergeAndCaptureOutdated(local, relayer)
	require.Equal(t, first, second)

	again := txmerge.MergeAndCaptureOutdated(first.Merged, relayer)
	require.Equal(t, first.Merged, again.Merged)
}

func TestMergeAndCaptureOutdated_Completeness(t *testing.T) {
	t.Parallel()

	local := []*entity.BridgeTransaction{tx("0x1", 0), tx("0x2", 0), tx("0x3", 0)}
	relayer := []*entity.BridgeTransaction{tx("0x3", 2), tx("0x5", 1)}

	res := txmerge.MergeAndCaptureOutdated(local, relayer)
	for _, r := range relayer {
		require.Contains(t, res.Merged, r)
	}
	for _, l := range local {
		inMerged, inOutdated := false, false
		for _, m := range res.Merged {
			inMerged = inMerged || m == l
		}
		for _, o := range res.OutdatedLocal {
			inOutdated = inOutdated || o == l
		}
		require.True(t, inMerged != inOutdated, "local tx %s must be in exactly one list", l.Hash)
	}
}

func TestMergeAndCaptureOutdated_Empty(t *testing.T) {
	t.Parallel()

	res := txmerge.MergeAndCaptureOutdated(nil, nil)
	require.Empty(t, res.Merged)
	require.Empty(t, res.OutdatedLocal)

	local := []*entity.BridgeTransaction{tx("0x1", 0)}
	res = txmerge.MergeAndCaptureOutdated(local, nil)
	require.Equal(t, local, res.Merged)
	require.Empty(t, res.OutdatedLocal)
}

func TestMergeAndCaptureOutdated_DoesNotModifyInputs(t *testing.T) {
	t.Parallel()

	local := []*entity.BridgeTransaction{tx("0x1", 0), tx("0x2", 0)}
	relayer := []*entity.BridgeTransaction{tx("0x2", 2)}
	localCopy := append([]*entity.BridgeTransaction(nil), local...)
	relayerCopy := append([]*entity.BridgeTransaction(nil), relayer...)

	txmerge.MergeAndCaptureOutdated(local, relayer)
	require.Equal(t, localCopy, local)
	require.Equal(t, relayerCopy, relayer)
}

func TestDedup(t *testing.T) {
	t.Parallel()

	first := tx("0x1", entity.MessageStatusNew)
	other := tx("0x2", entity.MessageStatusNew)
	last := tx("0x1", entity.MessageStatusDone)

	res := txmerge.Dedup([]*entity.BridgeTransaction{first, other, last})
	require.Len(t, res, 2)
	require.Same(t, last, res[0])
	require.Same(t, other, res[1])
}

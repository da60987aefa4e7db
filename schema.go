package evmsqlindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/chainindex/evmsqlindex/chain"
)

// EthereumStorageSchema tags which on-chain layout a block's Ethereum
// storage used, and therefore which receipt decoder applies to it.
type EthereumStorageSchema uint8

const (
	SchemaUndefined EthereumStorageSchema = iota
	SchemaV1
	SchemaV2
	SchemaV3
)

// encode serializes the schema tag the same way it is persisted in
// blocks.ethereum_storage_schema. RLP is used as the tag codec since it
// is already a dependency of core/types; see DESIGN.md.
func (s EthereumStorageSchema) encode() ([]byte, error) {
	return rlp.EncodeToBytes(uint8(s))
}

// decodeSchema is the inverse of encode. Any failure — truncated bytes,
// an out-of-range tag — is treated identically to "absent": the caller
// never fails because of it.
func decodeSchema(b []byte) EthereumStorageSchema {
	var tag uint8
	if err := rlp.DecodeBytes(b, &tag); err != nil {
		return SchemaUndefined
	}
	switch EthereumStorageSchema(tag) {
	case SchemaV1, SchemaV2, SchemaV3:
		return EthereumStorageSchema(tag)
	default:
		return SchemaUndefined
	}
}

// Override decodes the current receipts for a block under one schema
// version. Implementations are out of scope for this module — they
// belong to the receipt decoder appropriate to that schema version.
type Override interface {
	CurrentReceipts(id chain.BlockID) ([]*types.Receipt, error)
}

// OverrideHandle is the read-only-after-construction table the log
// ingestor dispatches through: a schema tag selects a decoder, with
// Fallback used for any tag not present in Schemas.
type OverrideHandle struct {
	Schemas  map[EthereumStorageSchema]Override
	Fallback Override
}

// resolve returns the Override registered for schema, or Fallback if none
// is registered.
func (h *OverrideHandle) resolve(schema EthereumStorageSchema) Override {
	if h == nil {
		return nil
	}
	if o, ok := h.Schemas[schema]; ok {
		return o
	}
	return h.Fallback
}

// onchainStorageSchema reads the Ethereum storage schema key at the
// given native block hash and decodes it, defaulting to SchemaUndefined
// on any absence or decode failure.
func onchainStorageSchema(reader chain.ChainReader, hash common.Hash) EthereumStorageSchema {
	raw, ok, err := reader.Storage(hash, chain.PalletEthereumSchemaKey)
	if err != nil || !ok {
		if err != nil {
			log.Debug("evmsqlindex: storage read failed, treating schema as undefined", "err", err)
		}
		return SchemaUndefined
	}
	return decodeSchema(raw)
}

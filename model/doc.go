// Package model defines the chain-agnostic data model shared by every xchain
// component: universal accounts and signers, transactions, blocks,
// subscription filters, and the structured error taxonomy.
//
// These structs are the only types intended for direct JSON serialization by
// consumers. Wire (protobuf) encoding lives in package codec.
package model

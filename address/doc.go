// Package address converts account addresses across the chain-agnostic
// boundary.
//
// Two representations are supported:
//   - CAIP-style strings "<namespace>:<reference>:<address>" (e.g.
//     "eip155:1:0x35B8...") and their canonical model.UniversalAccount form;
//   - the two encodings of a 20-byte account used by the Push chain family:
//     EIP-55 checksummed hex ("0x...") and bech32 ("push1...").
//
// The CAIP conversions are best-effort and never fail on unrecognized input;
// the hex/bech32 conversions are strict and return model.KindAddressFormat
// errors.
package address

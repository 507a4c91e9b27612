// Package domain defines the storefront entities held by the engine.
//
// Products, categories and cart line items are plain values. A CartLineItem
// embeds an owned copy of the Product it was created from, so updating a
// line's quantity can never reach back into the catalog slice.
//
// The package also owns the durable encoding of entities:
//   - MarshalCanonical: RFC 8785 canonical JSON (sorted keys, NFC strings, no floats)
//   - RecordDigest: domain-separated SHA-256 over the canonical payload
//   - Validate: struct validation applied at the durable boundary
//
// Prices are shopspring/decimal values and serialize as JSON strings, which
// keeps them exact and out of the float path of the canonical encoder.
package domain

// Package models defines the core domain models for Hausmate.
//
// # Models
//
//   - Expense: a shared household expense with payments and splits
//   - Payment: who paid what portion of an expense (multi-payer supported)
//   - Split: one member's assigned share of an expense
//   - Adjustment: an append-only correction layered on a settled split
//   - Settlement: a recorded payment between two members
//
// Members and households are owned by an external service; the core
// treats both as opaque string ids.
//
// # Design Principles
//
//  1. **History is immutable**: once a split is settled its amount is never
//     overwritten. Corrections are Adjustment records; deletions of settled
//     history are reversal adjustments.
//  2. **Balances are derived**: there is no stored balance field anywhere.
//     Balances are always recomputed from expenses, splits, adjustments,
//     and settlements.
//  3. **Avoid circular references**: relationships use ID strings, not
//     pointers.
//  4. **Exact money**: amounts are decimal.Decimal, rounded to cents at
//     the edges, never float64.
package models

// Package core provides the business logic for registry extract imports.
//
// This package is the heart of the importer, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Record Type Registry
//
// Record types are registered at init time using [Register]. Each
// [Definition] contains everything needed to process one extract kind:
// the accepted column counts, the fact-table insert statement, and the
// argument builder that resolves categorical fields to dictionary ids.
//
// # Import Pipeline
//
// One import moves through the phases of [Phase] in order:
//
//  1. Duplicate-year check; an existing year is either fully replaced
//     (never merged) or the import is cancelled before any write.
//  2. Reading: encoding negotiation over the raw bytes (internal/charset).
//  3. Parsing: chunked parallel tokenization (internal/parse) with live
//     progress forwarded to subscribers.
//  4. Importing: fixed-size batches, one transaction per batch, with
//     per-record error accounting.
//  5. Indexing: secondary indexes and dictionary caches are refreshed;
//     skippable when several imports run back-to-back.
//
// Progress is broadcast to subscribers via [Service.SubscribeProgress],
// and the final [ImportResult] is recorded in the import log.
//
// # Error Handling
//
// Fatal conditions (unresolvable encoding, header column count mismatch,
// empty file) stop the pipeline before any write. Recoverable conditions
// (malformed lines, unresolved dictionary fields, failed batch
// transactions) degrade the success rate but never abort the import.
package core

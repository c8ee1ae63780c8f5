// Package translog defines the shared transaction log vocabulary.
//
// A log entry is one immutable, sequence-numbered record of a state-changing
// event (template added, removed, pushed...). Entries are appended by a
// producer elsewhere; every worker process replays them in order and keeps a
// Cursor holding the highest sequence number it has applied.
//
// # Ordering
//
// Sequence numbers start at 0, are strictly increasing and gapless across the
// whole log. A worker accepts entry e only when e.Seq == cursor.Last()+1.
//
// # Kinds
//
// Kind is a closed set (init, echo, pull, delete, push). Decode turns an entry
// into one of the typed Args variants so handlers never read raw maps. Unknown
// wire-level kinds from newer producers still decode to an error at runtime.
//
// # Payload encoding
//
// Payloads are stored as canonical JSON (sorted keys, NFC strings, no HTML
// escaping) so two workers always hash the same entry the same way.
package translog

// Package engine implements the wsync log replay engine.
//
// A Processor owns this process's replay cursor. Each ProcessLog call:
//
//  1. takes the replay lock (blocking, or try-and-skip with LockModeSkip)
//  2. fetches every entry with seq > cursor, as a snapshot
//  3. for each entry: checks seq == cursor+1, looks up the handler, validates
//     the payload against the kind's CUE definition, decodes typed args,
//     calls the handler, advances the cursor
//  4. releases the lock and returns the number of entries applied
//
// ERROR HANDLING:
//
// A gap or reorder in the log is a ConsistencyViolation. It means a publish
// was lost or duplicated, so the batch stops and the worker stays at the last
// good entry rather than silently diverging. Unknown kinds and invalid
// payloads stop the batch the same way. Template operations that report
// status "error" are logged and do not stop replay.
//
// The cursor lives in memory only. A restarted process replays the log from
// the beginning.
package engine

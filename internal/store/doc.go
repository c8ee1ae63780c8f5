// Package store provides the SQLite-backed shared backend for wsync workers.
//
// The store holds two things every worker process on a host shares:
//   - transaction_log: the ordered, append-only log of state-changing events
//   - leases: time-bounded replay leases used by package lock
//
// # Ordering
//
// All log reads use ORDER BY seq ASC. seq is the rowid, allocated as max+1
// inside an IMMEDIATE transaction, so concurrent producers in different
// processes never share or skip a number.
//
// # Database Configuration
//
//   - WAL mode: readers do not block the producer
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - _txlock=immediate: write transactions take the write lock up front
package store

/*
Package cowdb implements an embedded, in-memory object store for records of
arbitrary user-defined types, with copy-on-write revisioning, secondary indexes
and single-file snapshots.

We implement:

1. Records, values of any type implementing Record. A record carries an id,
unique across all types within a Store and never reused, and a version that
grows by one with every revision.

2. Handles, typed views of one version of a record. Handles never share data:
Get hands out a private copy, and NewVersion derives a detached copy with the
next version number, to be written back with Update.

3. Indexes over the string values a record type reports from IndexValues,
queried by exact match (Query) or inclusive range (QueryRange).

4. Snapshots: Save writes the whole store to one file and Load restores the
records of one type from it.

# Technical Details

**Ownership.**
The store keeps its own copies of records. Add, Update and Restore copy on the
way in, Get and queries copy on the way out, so the stored state can only change
through an explicit write.

**Indexes**
For each type and field we keep the ids of the records that have the field, in
insertion order; the values themselves are read from the records during scans.
Indexes are derived state, recomputed for an id on every write and scrubbed on
Remove, so they always match the stored records (see VerifyIndexes).

**Versions**
Update is last-writer-wins. CompareAndUpdate additionally requires the new
record to be exactly one version ahead of the stored one.

## Binary encoding

**Primitives** come from package codec: fixed-width little-endian integers
and u32-length-prefixed strings.

**Snapshot file**:
1. Record count (u64).
2. For each record: type name (string), payload length (u64), payload.

**Payload**: whatever the record's Serialize writes, conventionally starting
with id (u64) and version (u64), see Meta.WriteMeta.

Loading is per type: records of other types are skipped using their payload
length, so a file can be restored type by type without knowing all the types
it contains.

Not safe for concurrent use.
*/
package cowdb

/*
Package couchview implements incremental map views over a CouchDB-style
revision log, on top of a key-value store (Bolt by default, SQLite, or memory).

We implement:

1. Views, named map functions with a persisted checkpoint and version.

2. Incremental indexing, mapping only the revisions added since the last
checkpoint and purging rows of the revisions they supersede.

3. Queries, ordered by JSON key collation, joined back to the revisions that
emitted each row.

4. A revision log (RevStore) with attachments, the default source of
revisions to index.

# Technical Details

**Buckets.**
We rely on scoped namespaces for keys called buckets. Bolt supports them
natively; the SQLite and memory backends use a (bucket, key) composite.
Per-view row buckets are nested under "maps" and "mapseqs", named by the
decimal view id.

**View ids.**
Each view gets a positive id from the "views" bucket sequence when first
registered. Ids are never reused, so the rows of a deleted view can never be
mistaken for those of a view later registered under the same name.

**Checkpoint.**
The registry row of a view stores the highest sequence its rows reflect. Zero
means "rebuild": the next update purges all rows and maps the whole log.

## Binary encoding

**Row key**: collated key, then sequence (8 bytes BE), then emission ordinal
(4 bytes BE). The collation encoding is prefix-free and order-preserving, so
bucket order is (key, sequence, emission order).

**Row value**: msgpack of the emitted key and value JSON.

**Sequence records** (in "mapseqs") list the row keys a sequence contributed:
count (uvarint), then each key as varbytes. Purging a superseded revision
deletes exactly those keys.
*/
package couchview

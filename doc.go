/*
Package segseq contains a single-writer, multi-reader, append-only sequence
of fixed-size elements which can be read concurrently with an in-progress
writer without locks.

Data Structure Documentation

Chain

A sequence is a singly linked chain of fixed-capacity segments. Segments are
only ever added at the tail. Every segment except the tail is fully packed.

    Chain layout:
    +-----------+      +-----------+             +-----------+
    | segment 1 | ---> | segment 2 | ---> ... -> | segment n |  (tip)
    +-----------+      +-----------+             +-----------+

The logical sequence is the concatenation of each segment's occupied prefix,
addressed by a zero-based index.

Segment

A segment holds a buffer of capacity elements, an atomic occupied count and an
atomic pointer to its successor.

    Segment layout:
    +-----------+-----+-----------+-----------------+-------------+
    | element 1 | ... | element n |  unused (zeroed) |  count/next |
    +-----------+-----+-----------+-----------------+-------------+

The writer copies elements into the buffer before it stores the new count, and
it allocates a successor before it stores the link. A reader which observes a
count or a link therefore always observes the elements behind it.

Ordering

Position and NextPosition assume that elements were appended in non-decreasing
order. The sequence never verifies this; out-of-order appends result in
unspecified (but memory safe) answers.

Lifetime

Writer, readers (and their clones) and live iterators share ownership of the
chain. Segment buffers are recycled once the last of them is closed or
released.
*/
package segseq

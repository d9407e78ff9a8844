/*
Package workflow defines the workflow definition graph and its primitives.

A Definition is an immutable directed graph of tasks and flows. Each
task optionally carries a split annotation (how control fans out of the
task once it completes) and a join annotation (how control arriving on
multiple incoming flows is synchronized before the task is enabled).

Definitions are assumed to already exist as in-memory graphs; this
package does not define a textual workflow language. Construct a
Definition, add tasks and flows, and call Validate before handing it to
the engine. The engine treats a validated Definition as read-only from
then on, so a single Definition can back any number of concurrently
running cases.

Guards on flows are plain Go predicates over the case data. XOR-splits
evaluate guards in the order the flows were added and enable the first
match, so flow order is significant.
*/
package workflow

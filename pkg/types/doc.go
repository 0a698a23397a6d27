/*
Package types defines the core data structures shared across dispatchd:
subscriptions, subscription sets, the combined set, dispatcher events, and
the error kinds surfaced by the public operations in pkg/dispatcher.

Nothing in this package touches I/O; it exists so every other package
(pkg/uri, pkg/subscription, pkg/dispatch, pkg/queue, pkg/queuestore) agrees
on one vocabulary instead of redeclaring these shapes locally.
*/
package types

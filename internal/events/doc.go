// Package events provides an in-process publish/subscribe bus for pipeline
// notifications such as sealed segments, meeting lifecycle changes, and note
// mention alerts. Delivery is best-effort: slow subscribers lose events
// instead of blocking publishers.
package events

// Package scheduler runs the wall-clock control loop that keeps the
// broadcast chain going: creating upcoming parts, taking the current one
// live, and stopping it when its window closes.
package scheduler

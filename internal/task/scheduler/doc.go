// Package scheduler registers the lifecycle sweeps and decides when they fire.
//
// It is trigger-only. Each job has its own cron or interval cadence and is
// handed to the task engine on every tick; the engine owns execution, the
// overlap guard and run history. After Start, a one-shot catch-up pass fires
// every job once so work that came due while the process was down is not
// left waiting for the next tick.
package scheduler

// Package logx is estatecron's structured logging: a thin Logger over zerolog
// whose level and sinks can be swapped at runtime by Service.Apply.
//
// Console output is human readable with a short file:line caller; the
// optional file sink is JSON.
package logx

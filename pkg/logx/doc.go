// Package logx is a small zerolog wrapper used by the layers that run
// before the slog logging service is wired (config loading, storage open).
package logx

package logx

import (
	"context"

	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	consoleKey contextKey = iota
	sessionKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConsole annotates the logger with the console id if present.
func WithConsole(ctx context.Context, consoleID schema.ConsoleID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if consoleID != "" {
		if current, ok := ctx.Value(consoleKey).(schema.ConsoleID); ok && current == consoleID {
			return log
		}
		log = log.With("console", consoleID)
	}
	return log
}

// WithConsoleSession annotates the logger with console and session identifiers.
func WithConsoleSession(ctx context.Context, consoleID schema.ConsoleID, sessionID schema.SessionID) pslog.Logger {
	log := WithConsole(ctx, consoleID)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// ContextWithConsole stores the console marker on the context for log de-duplication.
func ContextWithConsole(ctx context.Context, consoleID schema.ConsoleID) context.Context {
	if ctx == nil || consoleID == "" {
		return ctx
	}
	return context.WithValue(ctx, consoleKey, consoleID)
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithConsoleLogger attaches the logger and console marker to the context.
func ContextWithConsoleLogger(ctx context.Context, log pslog.Logger, consoleID schema.ConsoleID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConsole(ctx, consoleID)
}

// CopyContextFields copies console/session markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if console, ok := src.Value(consoleKey).(schema.ConsoleID); ok && console != "" {
		dst = ContextWithConsole(dst, console)
	}
	if session, ok := src.Value(sessionKey).(schema.SessionID); ok && session != "" {
		dst = ContextWithSession(dst, session)
	}
	return dst
}

/*
Package log provides structured logging for the engine using zerolog.

All logs include timestamps and support filtering by severity level. The
engine never logs plaintext secret material; component loggers attach
identifiers (client, vault, record) rather than payloads.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	log.Info("engine started")

	clientLog := log.WithClientID(clientID.String())
	clientLog.Info().Str("vault", vaultID.String()).Msg("vault key created")

# Levels

Debug is for development only; Info is the default production level; Warn
and Error mark conditions an operator should investigate. Fatal logs and
then calls os.Exit(1) — it must never be used on a path that could leave a
guarded region or a key store in an inconsistent state; use the engine's
own fatal() hook (package guarded) for conditions that must abort instead.
*/
package log

/*
Package obsws is a client for the OBS websocket control protocol (RPC version 1).

# Overview

A Session is one authenticated connection. Connect dials the server, reads
Hello, answers with Identify (including the challenge response when the
server asks for a password) and waits for Identified. After that a single
receive goroutine owns the socket and routes frames:

  - RequestResponse frames go to the caller waiting on the matching request id
  - Event frames go to the Events channel
  - anything else is logged and dropped

Responses whose id is not pending are discarded; they never reach another
caller.

# Errors

Connect fails with a *ConnectError whose Kind is Unreachable, AuthRejected or
ProtocolViolation. Requests fail with a *RequestError (Disconnected, Timeout,
Malformed) or, when the server answered but refused, a *StatusError. Both
typed errors match their sentinels through errors.Is:

	_, err := s.GetInputSettings(ctx, "Safari")
	switch {
	case errors.Is(err, obsws.ErrTimeout):
		// the session is still usable
	case obsws.IsTransportError(err):
		// reconnect
	}

# Usage

	s, err := obsws.Connect(ctx, obsws.Options{
		Host:     "localhost",
		Port:     4455,
		Password: os.Getenv("OBS_PASSWORD"),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	inputs, err := s.GetInputList(ctx)

Frames are encoded with sonic in its encoding/json compatible mode.
*/
package obsws

/*
Package server manages an HTTP/HTTPS server's lifecycle: non-blocking
startup, graceful shutdown, and OS signal handling.

# Overview

Manager wraps net/http.Server and centralizes listening, serving,
shutdown, and error propagation. It supports both plain HTTP and TLS
startup, with built-in SIGINT/SIGTERM handling for production-grade
graceful shutdown.

# Core types

  - Manager: holds the http.Server, net.Listener, and an asynchronous
    error channel, exposing Start/StartTLS/Shutdown/WaitForShutdown.
  - Config: listen address, read/write/idle timeouts, max header size,
    and shutdown timeout.

# Capabilities

  - Non-blocking startup: Start/StartTLS serve from a background
    goroutine; the caller never blocks.
  - Graceful shutdown: Shutdown drains in-flight requests and releases
    connections within the configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and
    triggers a graceful shutdown automatically.
  - Error propagation: Errors() returns a channel callers can monitor
    for unexpected server failures.
  - TLS support: StartTLS takes a certificate and key file.
  - Status queries: IsRunning/Addr report current state.
*/
package server

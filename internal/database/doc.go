/*
Package database provides a GORM-backed connection pool manager with
health checks, pool statistics, and retrying transactions.

# Overview

PoolManager wraps GORM and database/sql pool configuration, centralizing
connection lifecycle, idle reclamation, and max-connection limits. A
background health check pings periodically and logs diagnostics via zap
on failure.

# Core types

  - PoolManager: holds the GORM DB instance and underlying sql.DB,
    exposing DB(), Ping(), Stats(), Close().
  - PoolConfig: max idle/open connections, connection max lifetime, idle
    timeout, health-check interval.
  - PoolStats: a friendlier view of the pool's runtime statistics.
  - TransactionFunc: the transaction callback type.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Health checks: periodic PingContext with connection/idle counts.
  - Transactions: WithTransaction runs one transaction;
    WithTransactionRetry adds exponential backoff for transient failures
    (deadlock, serialization failure, dropped connections).
  - GetStats returns structured pool metrics.
*/
package database

// Package postgres implements job.Store on PostgreSQL using pgx/v5 with raw
// SQL. Conditional updates are a single UPDATE guarded by the expected
// status. Schema changes ship as embedded SQL migrations applied by Migrate.
package postgres

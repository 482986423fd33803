// Package main hosts the sitesleuth service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and scan endpoints. A scan request is
//     validated and handed to the pipeline; the owner identity comes from the X-User-ID header set
//     by the external auth layer.
//   - Pipeline: internal/pipeline runs one scan end to end. Quick scans perform a single timed fetch;
//     deep scans traverse the site depth-first via internal/crawler bounded by a page cap. Extracted
//     text flows through the classifier gateway, which tries each configured LLM backend in order and
//     sanitizes the first parseable response.
//   - Caching & persistence: results are stored per (owner, URL fingerprint) in Postgres (or an
//     in-memory store when no DSN is configured) and served as cache hits within a 24-hour window.
//   - Fanout: raw HTML snapshots go to the configured BlobStore (memory/local/GCS) and a compact
//     scan-completed event is published to Pub/Sub when enabled. Both are best effort.
//   - Plumbing: Viper populates config from env/files with the SITESLEUTH_ prefix; zap provides
//     structured logging; Prometheus metrics are exported via the /metrics handler.
//
// Run locally: go run ./cmd/sitesleuth -config config.yaml (or rely solely on env overrides).
// The process reacts to SIGINT/SIGTERM with a graceful HTTP drain.
package main

// Package telemetry provides the observability plumbing shared by forage's
// store, task scope, view model and CLI.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one Telemetry value:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
//	logger := tel.Logger.NewComponentLogger("store")
//	logger.WithRecordID(42).Info("Forageable inserted")
//
// # Tracing
//
// Mutations and tasks get their own spans:
//
//	ctx, span := tel.Tracer.StartMutationSpan(ctx, "insert", 0)
//	defer span.End()
//
// Supported exporters: "otlp" (gRPC), "stdout" and "none".
//
// # Metrics
//
// Metrics live on a private registry and are served on
// MetricsConfig.ListenAddress when enabled:
//
//   - forage_mutations_submitted_total{operation}
//   - forage_mutations_completed_total{operation,status}
//   - forage_mutation_duration_seconds{operation}
//   - forage_task_failures_total{operation,class}
//   - forage_queued_tasks
//   - forage_changes_published_total{kind}
//   - forage_live_observers{query}
//   - forage_query_duration_seconds{query}
//   - forage_errors_by_class_total{class}
//
// A nil *Metrics, a nil *Tracer and Nop() are all safe to use, which keeps
// tests free of telemetry setup.
package telemetry

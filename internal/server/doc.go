// Package server provides HTTP routing, middleware and the status listener started by the
// schedule command.
//
// # Router
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter]
// implements it over [http.ServeMux] with a method check per route. [Middleware] added
// first runs first.
//
// # Status Handler
//
// [StatusHandler] serves the Prometheus registry at /metrics and the outcome of the most
// recent sync run at /healthz. A failed last run answers 503. Partial runs are reported but
// stay 200.
//
// # Handler Interface
//
// Handlers that own several paths implement [Handler], which adds Routes to
// [http.Handler] so the router can register them together.
package server

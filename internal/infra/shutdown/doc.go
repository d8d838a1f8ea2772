// Package shutdown coordinates graceful process termination.
//
// Components register named hooks; on SIGINT, SIGTERM or an explicit
// Trigger the hooks run in reverse registration order under one deadline.
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("kinetic server", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown

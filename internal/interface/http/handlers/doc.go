// Package handlers contains reusable HTTP pieces of the attainment API:
// health checking and middleware.
//
// Health checks run in parallel with a per-check timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//		// report 503 from /ready
//	}
package handlers

// Package bootstrap assembles the application from its settings: logger,
// tracer, database, discovered domain routers and the HTTP server.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := app.Start(); err != nil {
//	    _ = app.Shutdown(ctx)
//	    return err
//	}
//	app.WaitForShutdown()
//	return app.Shutdown(ctx)
package bootstrap

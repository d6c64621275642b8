// Package bootstrap runs a streamkit binary: it validates the typed config,
// initialises the logger, starts registered components in order, logs a
// startup summary, waits for SIGINT/SIGTERM and stops everything in reverse.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(broadcaster)
//	app.RegisterComponent(server.NewComponent(srv))
//	return app.Run(ctx)
//
// RunTask gives finite tools, such as a stream tailer, the same lifecycle
// around a single task function.
package bootstrap

package main

import "time"

const (
	appName = "screen-relay"

	// shutdownTimeout bounds graceful HTTP shutdown after SIGINT/SIGTERM.
	shutdownTimeout = 5 * time.Second

	readHeaderTimeout = 10 * time.Second
)

const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, OPTIONS"
	corsAllowHeaders = "Content-Type"
)

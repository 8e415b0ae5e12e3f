package logging

// These constants are used to identify the various services that may do some logging
const (
	// COMPILATION_SERVICE is the constant used to identify the compilation package
	COMPILATION_SERVICE = "compilation"
	// ROUTER_SERVICE is the constant used to identify router generation and validation
	ROUTER_SERVICE = "router"
	// STORAGE_SERVICE is the constant used to identify the storage layout gate
	STORAGE_SERVICE = "storage"
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
)

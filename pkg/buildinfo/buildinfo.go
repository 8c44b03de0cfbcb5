package buildinfo

// Overridden at release time with -ldflags "-X github.com/newtonium/newtonium/pkg/buildinfo.VERSION=..."
var VERSION = "0.1.0-dev"

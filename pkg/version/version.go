package version

// Version is the release version, overridden at build time with
// -ldflags "-X wikimap/pkg/version.Version=...".
var Version = "v0.1.0"

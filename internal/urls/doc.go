// Package urls provides centralized constants for the documentation URLs used
// throughout the application, so they can be updated in a single location
// before release.
//
// Usage:
//
//	import "github.com/muurk/jeedomfinder/internal/urls"
//
//	fmt.Printf("First steps with Jeedom: %s\n", urls.JeedomInstallation)
package urls

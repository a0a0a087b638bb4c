// Package all registers all built-in process backends.
//
// Import for side effects:
//
//	import _ "github.com/mbrock/servelaunch/internal/backend/all"
package all

import (
	_ "github.com/mbrock/servelaunch/internal/process/exec"
	_ "github.com/mbrock/servelaunch/internal/process/systemd"
)

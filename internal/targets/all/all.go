// Package all imports every target catalog so that each registers via
// init().
//
//	import _ "github.com/zboralski/offscan/internal/targets/all"
package all

import (
	_ "github.com/zboralski/offscan/internal/targets/luaapi"
	_ "github.com/zboralski/offscan/internal/targets/roblox"
)

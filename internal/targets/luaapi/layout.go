package luaapi

import (
	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/layout"
)

func init() {
	field := func(strct, name string, word, size int, min, max uint64, patterns ...string) {
		layout.Register(layout.Field{
			Struct:   strct,
			Name:     name,
			Category: Category,
			Patterns: patterns,
			Word:     word,
			Size:     size,
			Min:      min,
			Max:      max,
		})
	}

	field("lua_State", "top", 2, 8, 0x08, 0x80,
		"F9 ?? ?? ?? 91 ?? ?? ?? F9 ?? ?? ?? 91 ?? ?? ?? F9")
	field("lua_State", "base", 0, 8, 0x10, 0x100,
		"F9 ?? ?? ?? 91 ?? ?? ?? F9 ?? ?? ?? 91",
		"F9 ?? ?? ?? A9 ?? ?? ?? F9 ?? ?? ?? B9")
	field("lua_State", "stack", 0, 8, 0x18, 0x100,
		"F9 ?? ?? ?? B9 ?? ?? ?? F9 ?? ?? ?? B4")
	// global_State pointer, dereferenced straight away
	field("lua_State", "global", 0, 8, 0x20, 0x40,
		"F9 ?? ?? ?? F9")

	field("Closure", "proto", 0, 8, 0x10, 0x30,
		"F9 ?? ?? ?? F9 ?? ?? ?? B4 ?? ?? ?? 94",
		"F9 ?? ?? ?? AA ?? ?? ?? F9 ?? ?? ?? 94")
	field("Closure", "nupvalues", 0, 0, 0x06, 0x10,
		"39 ?? ?? ?? 71 ?? ?? ?? 54",
		"79 ?? ?? ?? 71 ?? ?? ?? 54")
	field("Closure", "isC", 0, 1, 0x04, 0x08,
		"39 ?? ?? ?? 37 ?? ?? ?? ?? ?? ?? 94",
		"39 ?? ?? ?? 36 ?? ?? ?? F9 ?? ?? ?? 94")

	field("Proto", "k", 0, 8, 0x08, 0x30,
		"F9 ?? ?? ?? 8B ?? ?? ?? F9 ?? ?? ?? B4")
	field("Proto", "code", 0, 8, 0x10, 0x40,
		"F9 ?? ?? ?? 39 ?? ?? ?? 91 ?? ?? ?? F9")

	constants.Integers(Category, map[string]int64{
		// type tags
		"LUA_TNONE": -1, "LUA_TNIL": 0, "LUA_TBOOLEAN": 1, "LUA_TLIGHTUSERDATA": 2,
		"LUA_TNUMBER": 3, "LUA_TVECTOR": 4, "LUA_TSTRING": 5, "LUA_TTABLE": 6,
		"LUA_TFUNCTION": 7, "LUA_TUSERDATA": 8, "LUA_TTHREAD": 9, "LUA_TBUFFER": 10,

		// thread status
		"LUA_OK": 0, "LUA_YIELD": 1, "LUA_ERRRUN": 2, "LUA_ERRSYNTAX": 3,
		"LUA_ERRMEM": 4, "LUA_ERRERR": 5, "LUA_BREAK": 6,

		// lua_gc operations
		"LUA_GCSTOP": 0, "LUA_GCRESTART": 1, "LUA_GCCOLLECT": 2, "LUA_GCCOUNT": 3,
		"LUA_GCCOUNTB": 4, "LUA_GCSTEP": 5, "LUA_GCSETPAUSE": 6, "LUA_GCSETSTEPMUL": 7,

		// pseudo-indices and limits
		"LUA_MULTRET": -1, "LUA_REGISTRYINDEX": -10000, "LUA_ENVIRONINDEX": -10001,
		"LUA_GLOBALSINDEX": -10002, "LUA_MINSTACK": 20, "LUAI_MAXSTACK": 1000000,
		"LUAI_MAXCSTACK": 8000,
	})
}

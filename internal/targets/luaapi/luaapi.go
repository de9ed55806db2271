// Package luaapi registers the Lua C API entry points.
package luaapi

import "github.com/zboralski/offscan/internal/finder"

// Category is the category of every target in this package.
const Category = "lua_api"

func init() {
	// Stack
	api("lua_gettop", "int lua_gettop(lua_State *L)",
		"F9 ?? ?? ?? D1 ?? ?? ?? 9B ?? ?? ?? CB")
	api("lua_settop", "void lua_settop(lua_State *L, int index)",
		"F9 ?? ?? ?? B4 ?? ?? ?? 91 ?? ?? ?? F9")
	api("lua_pushvalue", "void lua_pushvalue(lua_State *L, int index)",
		"A9 ?? ?? ?? F9 ?? ?? ?? 91 ?? ?? ?? EB")

	// Access
	api("lua_type", "int lua_type(lua_State *L, int index)",
		"F9 ?? ?? ?? B4 ?? ?? ?? 39 ?? ?? ?? 52")
	api("lua_tonumber", "lua_Number lua_tonumber(lua_State *L, int index)",
		"F9 ?? ?? ?? BD ?? ?? ?? 1E ?? ?? ?? 1E", "lua_tonumberx")
	api("lua_toboolean", "int lua_toboolean(lua_State *L, int index)",
		"F9 ?? ?? ?? B4 ?? ?? ?? 39 ?? ?? ?? 71")
	api("lua_tostring", "const char* lua_tostring(lua_State *L, int index)",
		"F9 ?? ?? ?? B4 ?? ?? ?? 39 ?? ?? ?? F0", "lua_tolstring")
	api("lua_touserdata", "void* lua_touserdata(lua_State *L, int index)",
		"F9 ?? ?? ?? B4 ?? ?? ?? 39 ?? ?? ?? 71 ?? ?? ?? 54")

	// Tables
	api("lua_rawget", "void lua_rawget(lua_State *L, int index)",
		"A9 ?? ?? ?? F9 ?? ?? ?? 94 ?? ?? ?? A9")
	api("lua_rawgeti", "void lua_rawgeti(lua_State *L, int index, int n)",
		"A9 ?? ?? ?? F9 ?? ?? ?? 93 ?? ?? ?? 94")
	api("lua_rawset", "void lua_rawset(lua_State *L, int index)",
		"A9 ?? ?? ?? F9 ?? ?? ?? D1 ?? ?? ?? F9")
	api("lua_rawseti", "void lua_rawseti(lua_State *L, int index, int n)",
		"A9 ?? ?? ?? F9 ?? ?? ?? 93 ?? ?? ?? D1")
	api("lua_getfield", "void lua_getfield(lua_State *L, int index, const char *k)",
		"A9 ?? ?? ?? F9 ?? ?? ?? 94 ?? ?? ?? B4")
	api("lua_createtable", "void lua_createtable(lua_State *L, int narr, int nrec)",
		"A9 ?? ?? ?? 2A ?? ?? ?? 2A ?? ?? ?? 94")

	// Threads and calls
	api("lua_newthread", "lua_State* lua_newthread(lua_State *L)",
		"A9 ?? ?? ?? F9 ?? ?? ?? 52 ?? ?? ?? 94")
	api("lua_resume", "int lua_resume(lua_State *L, int nargs)",
		"A9 ?? ?? ?? F9 ?? ?? ?? B4 ?? ?? ?? F9 ?? ?? ?? 94")
	api("lua_pcall", "int lua_pcall(lua_State *L, int nargs, int nresults, int errfunc)",
		"A9 ?? ?? ?? F9 ?? ?? ?? D1 ?? ?? ?? 94 ?? ?? ?? B5", "lua_pcallk")
	api("lua_call", "void lua_call(lua_State *L, int nargs, int nresults)",
		"A9 ?? ?? ?? F9 ?? ?? ?? D1 ?? ?? ?? 94 ?? ?? ?? A9", "lua_callk")
}

// api registers a Lua C API function. The plain and underscored names are
// always tried first; alt names are versioned variants such as lua_pcallk.
// Every entry takes lua_State in x0, so the default check (prologue plus a
// load through the state pointer) applies.
func api(name, signature, pattern string, alt ...string) {
	aliases := []string{name, "_" + name}
	for _, a := range alt {
		aliases = append(aliases, a, "_"+a)
	}
	finder.Register(finder.Target{
		Name:      name,
		Category:  Category,
		Signature: signature,
		Aliases:   aliases,
		Patterns:  []string{pattern},
	})
}

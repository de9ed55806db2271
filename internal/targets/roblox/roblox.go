// Package roblox registers Roblox engine internals that sit on top of the
// Luau VM.
package roblox

import (
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/shape"
)

// Category is the category of every target in this package.
const Category = "roblox"

func init() {
	finder.Register(finder.Target{
		Name:      "LuauLoad",
		Category:  Category,
		Signature: "int LuauLoad(lua_State* L, const char* chunkname, const char* source, size_t size, int env)",
		Aliases:   []string{"luau_load", "_luau_load"},
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 F3 ?? ?? A9 F5 ?? ?? A9 F7 ?? ?? A9 F9 ?? ?? A9 FB ?? ?? A9",
			"A9 ?? ?? ?? A9 ?? ?? ?? A9 ?? ?? ?? 90 ?? ?? ?? 91 ?? ?? ?? 94",
			"F4 4F ?? A9 FD 7B ?? A9 FD ?? ?? 91 F3 ?? ?? F8",
		},
		Strings:        []string{"compile error", "bytecode version", "luau", "main chunk"},
		ValidateWindow: 128,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Load64, shape.Call) && fn.AnyWord(argRegister)
		},
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.AtLeast(
				shape.Min{Feature: shape.Load64, N: 3},
				shape.Min{Feature: shape.Call, N: 1},
				shape.Min{Feature: shape.StorePair, N: 2},
			)
		},
	})

	finder.Register(finder.Target{
		Name:      "NewThread",
		Category:  Category,
		Signature: "lua_State* NewThread(lua_State* L)",
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 F3 ?? ?? A9 ?? ?? ?? ?? 94 ?? ?? ?? F9",
			"A9 ?? ?? ?? F9 ?? ?? ?? 52 ?? ?? ?? 94 ?? ?? ?? B4",
		},
		ValidateWindow: 96,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Call, shape.Store64)
		},
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.AtLeast(
				shape.Min{Feature: shape.Call, N: 1},
				shape.Min{Feature: shape.Store64, N: 2},
			)
		},
	})

	finder.Register(finder.Target{
		Name:      "PushInstance",
		Category:  Category,
		Signature: "void PushInstance(lua_State* L, Instance* instance)",
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 F3 ?? ?? A9 F5 ?? ?? A9 ?? ?? ?? F9",
			"A9 ?? ?? ?? A9 ?? ?? ?? F9 ?? ?? ?? B4 ?? ?? ?? 94",
		},
		Strings:        []string{"Instance", "userdata", "weak references"},
		ValidateWindow: 128,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Call, shape.Store64)
		},
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.AtLeast(
				shape.Min{Feature: shape.Call, N: 2},
				shape.Min{Feature: shape.Store64, N: 1},
			)
		},
	})

	finder.Register(finder.Target{
		Name:      "GetTypename",
		Category:  Category,
		Signature: "const char* GetTypename(lua_State* L, int index)",
		Aliases:   []string{"lua_typename", "_lua_typename", "luaT_objtypename", "_luaT_objtypename"},
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 ?? ?? ?? 39 71 ?? ?? ?? 54",
			"39 ?? ?? ?? 71 ?? ?? ?? 54 ?? ?? ?? 90 ?? ?? ?? 91",
		},
		Strings:        []string{"userdata", "function", "boolean", "thread"},
		ValidateWindow: 96,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.LoadByte) && fn.Any(shape.Compare, shape.Adrp)
		},
		ShapeWindow: 80,
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.AtLeast(
				shape.Min{Feature: shape.Compare, N: 2},
				shape.Min{Feature: shape.CondBranch, N: 2},
			)
		},
	})

	finder.Register(finder.Target{
		Name:      "IdentityPropagator",
		Category:  Category,
		Signature: "void IdentityPropagator(lua_State* L, int identity)",
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 F3 ?? ?? A9 ?? ?? ?? B9 71",
			"B9 ?? ?? ?? 71 ?? ?? ?? 54 ?? ?? ?? B9 ?? ?? ?? 91",
			"F9 ?? ?? ?? B9 ?? ?? ?? 52 ?? ?? ?? 72 ?? ?? ?? B9",
		},
		Strings:        []string{"identity", "security", "permission", "context"},
		ValidateWindow: 128,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Load64) && fn.Any(shape.Store32, shape.Compare)
		},
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Load64, shape.Store32)
		},
	})

	finder.Register(finder.Target{
		Name:      "PushCClosure",
		Category:  Category,
		Signature: "void PushCClosure(lua_State* L, lua_CFunction fn, const char* debugname, int nup, lua_Continuation cont)",
		Aliases:   []string{"lua_pushcclosurek", "_lua_pushcclosurek", "lua_pushcclosure", "_lua_pushcclosure"},
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 F3 ?? ?? A9 F5 ?? ?? A9 ?? ?? ?? 52",
			"52 ?? ?? ?? 72 ?? ?? ?? 94 ?? ?? ?? F9 ?? ?? ?? B9",
		},
		Strings:        []string{"cclosure", "upvalue", "debugname"},
		ValidateWindow: 128,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Call, shape.Store64)
		},
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.AtLeast(
				shape.Min{Feature: shape.Call, N: 1},
				shape.Min{Feature: shape.Store64, N: 3},
				shape.Min{Feature: shape.MovReg, N: 2},
			)
		},
	})

	finder.Register(finder.Target{
		Name:      "TaskScheduler",
		Category:  Category,
		Signature: "TaskScheduler* TaskScheduler::singleton()",
		Aliases:   []string{"_ZN3RBX13TaskScheduler9singletonEv", "__ZN3RBX13TaskScheduler9singletonEv"},
		Patterns: []string{
			"FD 7B ?? A9 FD ?? ?? 91 ?? ?? ?? 90 ?? ?? ?? F9 ?? ?? ?? B4",
			"90 ?? ?? ?? F9 ?? ?? ?? B4 ?? ?? ?? 52 ?? ?? ?? B9",
		},
		Strings:        []string{"TaskScheduler", "JobPriority", "scheduler", "Waiting", "Running"},
		ValidateWindow: 96,
		Validate: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Load64, shape.Return)
		},
		// singleton getter: page of the global, load, return
		Shape: func(fn shape.Func) bool {
			return fn.StartsWithPrologue() && fn.Has(shape.Adrp, shape.Load64)
		},
	})
}

// argRegister matches an instruction writing x2..x4, the source and size
// arguments of a loader call.
func argRegister(w uint32) bool {
	rd := w & 0x1F
	return rd >= 2 && rd <= 4
}

package symbol

import (
	"sync"
	"testing"

	"github.com/zboralski/offscan/internal/memory"
)

func newTable() *Table {
	return NewTable(
		Symbol{Name: "foo", Address: 0x10000000, Kind: KindFunc},
		Symbol{Name: "_lua_gettop", Address: 0x1000, Kind: KindFunc},
		Symbol{Name: "lua_settop", Address: 0x1100, Kind: KindFunc},
		Symbol{Name: "lua_State_size", Address: 0x9000, Kind: KindObject},
		Symbol{Name: "_ZN3RBX9DataModel5closeEv", Address: 0x2000, Kind: KindFunc},
		Symbol{Name: "_ZTVN3RBX9DataModelE", Address: 0x8000, Kind: KindObject},
		Symbol{Name: "__ZTV8Instance", Address: 0x8100, Kind: KindObject},
	)
}

func TestResolve(t *testing.T) {
	tab := newTable()
	if addr, ok := tab.Resolve("foo"); !ok || addr != 0x10000000 {
		t.Errorf("Resolve(foo) = %s, %v", addr, ok)
	}
	if _, ok := tab.Resolve("lua_gettop"); ok {
		t.Error("Resolve matched without the underscore alias")
	}
	if addr, ok := tab.Resolve("_lua_gettop"); !ok || addr != 0x1000 {
		t.Errorf("Resolve(_lua_gettop) = %s, %v", addr, ok)
	}
	if addr, ok := tab.Resolve("RBX::DataModel::close"); !ok || addr != 0x2000 {
		t.Errorf("Resolve(demangled) = %s, %v", addr, ok)
	}
}

func TestFind(t *testing.T) {
	tab := newTable()
	got := tab.FindByPrefix("lua_")
	if len(got) != 2 || got[0].Name != "lua_settop" || got[1].Name != "lua_State_size" {
		t.Errorf("FindByPrefix = %+v", got)
	}
	got = tab.FindByContains("gettop")
	if len(got) != 1 || !got[0].IsFunction() {
		t.Errorf("FindByContains = %+v", got)
	}
	if got[0].Kind.String() != "func" {
		t.Errorf("Kind = %s", got[0].Kind)
	}
}

func TestNameAt(t *testing.T) {
	tab := NewTable(
		Symbol{Name: "obj", Address: 0x10, Kind: KindObject},
		Symbol{Name: "fn", Address: 0x10, Kind: KindFunc},
	)
	if got := tab.NameAt(0x10); got != "fn" {
		t.Errorf("NameAt = %q, want function name", got)
	}
	if got := tab.NameAt(0x20); got != "" {
		t.Errorf("NameAt(missing) = %q", got)
	}
}

func TestClasses(t *testing.T) {
	classes := newTable().Classes()
	want := map[string]memory.Address{
		"RBX::DataModel": 0x8000,
		"Instance":       0x8100,
	}
	if len(classes) != len(want) {
		t.Fatalf("Classes = %v", classes)
	}
	for name, addr := range want {
		if classes[name] != addr {
			t.Errorf("Classes[%q] = %s, want %s", name, classes[name], addr)
		}
	}
}

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"_ZTVN7cocos2d8LuaStackE": "cocos2d::LuaStack",
		"_ZTV8Instance":           "Instance",
		"__ZTVN3RBX5ActorE":       "RBX::Actor",
		"_ZN3foo3barEv":           "",
		"main":                    "",
	}
	for in, want := range tests {
		if got := ClassName(in); got != want {
			t.Errorf("ClassName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	tab := newTable()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				tab.Add(Symbol{Name: "extra", Address: memory.Address(i), Kind: KindFunc})
			}
			tab.Resolve("RBX::DataModel::close")
			tab.FindByPrefix("lua_")
		}(i)
	}
	wg.Wait()
	if _, ok := tab.Resolve("extra"); !ok {
		t.Error("concurrent Add lost")
	}
}

func TestCleanName(t *testing.T) {
	if got := CleanName("memcpy@@GLIBC_2.17"); got != "memcpy" {
		t.Errorf("CleanName = %q", got)
	}
	if got := CleanName("plain"); got != "plain" {
		t.Errorf("CleanName = %q", got)
	}
}

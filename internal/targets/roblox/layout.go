package roblox

import (
	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/layout"
)

func init() {
	layout.Register(layout.Field{
		Struct:   "ExtraSpace",
		Name:     "identity",
		Category: Category,
		Patterns: []string{
			"B9 ?? ?? ?? 71 ?? ?? ?? 54 ?? ?? ?? B9",
			"F9 ?? ?? ?? B9 ?? ?? ?? 52 ?? ?? ?? 72",
		},
		Size: 4,
		Min:  0x10,
		Max:  0x40,
	})
	layout.Register(layout.Field{
		Struct:   "ExtraSpace",
		Name:     "capabilities",
		Category: Category,
		Patterns: []string{
			"F9 ?? ?? ?? B9 ?? ?? ?? 72 ?? ?? ?? B9",
		},
		Word:  1,
		Size:  4,
		Store: true,
		Min:   0x20,
		Max:   0x60,
	})
	layout.Register(layout.Field{
		Struct:   "ExtraSpace",
		Name:     "scriptContext",
		Category: Category,
		Patterns: []string{
			"F9 ?? ?? ?? B4 ?? ?? ?? F9 ?? ?? ?? B4",
		},
		Size: 8,
		Min:  0x08,
		Max:  0x30,
	})

	constants.Integers(Category, map[string]int64{
		"IDENTITY_PLUGIN": 1, "IDENTITY_REPLICATOR": 2, "IDENTITY_LOCAL_USER": 3,
		"IDENTITY_GAME_SCRIPT": 4, "IDENTITY_LOCAL_ROBLOX": 5, "IDENTITY_COM_SCRIPT": 6,
		"IDENTITY_COMMAND_BAR": 7, "IDENTITY_ROBLOX_SCRIPT": 8,
	})
	constants.Strings(Category,
		"Players", "LocalPlayer", "PlayerGui", "StarterGui", "CoreGui",
		"ReplicatedStorage", "ServerStorage", "ServerScriptService", "Lighting",
		"RunService", "UserInputService", "TweenService", "HttpService",
		"MarketplaceService", "DataStoreService", "ContextActionService",
		"GuiService", "SoundService", "TextService", "TeleportService",
		"PathfindingService", "PhysicsService", "CollectionService",
		"BadgeService", "TestService", "PluginGuiService",
	)
}

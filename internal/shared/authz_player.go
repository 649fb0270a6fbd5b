package shared

// Player management permissions.
const (
	PermPlayerView     = "player.view"
	PermPlayerBan      = "player.ban"
	PermPlayerKick     = "player.kick"
	PermPlayerModerate = "player.moderate"
)

// PlayerPermissions lists catalog entries in the player category.
func PlayerPermissions() []PermissionDef {
	return []PermissionDef{
		{Name: PermPlayerView, Description: "View player information", Category: "player"},
		{Name: PermPlayerBan, Description: "Ban/unban players", Category: "player", Sensitive: true},
		{Name: PermPlayerKick, Description: "Kick players from servers", Category: "player"},
		{Name: PermPlayerModerate, Description: "Moderate player chat and behavior", Category: "player"},
	}
}

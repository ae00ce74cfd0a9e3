// Package rbac is the client-side permission gate for portal actions. It
// mirrors the server's role matrix so the UI can hide actions the server
// would reject; the server re-checks every action, so this layer is a UX
// convenience, never the authority.
package rbac

import "sort"

// Role is a portal user role. The set is closed.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleUser    Role = "User"
)

// Action names a gated portal operation. The set is closed; any action not
// listed in the matrix is denied for every role.
type Action string

const (
	ActionPing                Action = "PING"
	ActionReboot              Action = "REBOOT"
	ActionGenerateReport      Action = "GENERATE_REPORT"
	ActionUpdateE911          Action = "UPDATE_E911"
	ActionUpdateHeartbeat     Action = "UPDATE_HEARTBEAT"
	ActionViewAdmin           Action = "VIEW_ADMIN"
	ActionRestartContainer    Action = "RESTART_CONTAINER"
	ActionPullLogs            Action = "PULL_LOGS"
	ActionSwitchChannel       Action = "SWITCH_CHANNEL"
	ActionAckIncident         Action = "ACK_INCIDENT"
	ActionCloseIncident       Action = "CLOSE_INCIDENT"
	ActionManageNotifications Action = "MANAGE_NOTIFICATIONS"
	ActionVolaAdmin           Action = "VOLA_ADMIN"
)

// matrix must stay in lockstep with the server's RBAC policy. A drift either
// hides a legitimate action or shows one the server will reject.
var matrix = map[Action][]Role{
	ActionPing:                {RoleAdmin, RoleManager},
	ActionReboot:              {RoleAdmin},
	ActionGenerateReport:      {RoleAdmin, RoleManager},
	ActionUpdateE911:          {RoleAdmin},
	ActionUpdateHeartbeat:     {RoleAdmin},
	ActionViewAdmin:           {RoleAdmin},
	ActionRestartContainer:    {RoleAdmin},
	ActionPullLogs:            {RoleAdmin},
	ActionSwitchChannel:       {RoleAdmin},
	ActionAckIncident:         {RoleAdmin, RoleManager},
	ActionCloseIncident:       {RoleAdmin, RoleManager},
	ActionManageNotifications: {RoleAdmin},
	ActionVolaAdmin:           {RoleAdmin},
}

// Can reports whether role may perform action. An empty role (no
// authenticated user) and an unknown action both deny: fail closed.
func Can(action Action, role Role) bool {
	if role == "" {
		return false
	}
	allowed, ok := matrix[action]
	if !ok {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Actions returns every action in the matrix, sorted, for display purposes.
func Actions() []Action {
	out := make([]Action, 0, len(matrix))
	for a := range matrix {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

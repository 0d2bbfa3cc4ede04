package admin

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command names recognized by the control plane, lower-cased on the
// wire per the canonicalization rule.
const (
	CmdPing                    = "ping"
	CmdHealth                  = "health"
	CmdGetConfig               = "getconfig"
	CmdGetStats                = "getstats"
	CmdGetLogs                 = "getlogs"
	CmdListConnections         = "listconnections"
	CmdGetNullifierStatus      = "getnullifierstatus"
	CmdGetRPCHealth            = "getrpchealth"
	CmdQuerySession            = "querysession"
	CmdGetLayerStatus          = "getlayerstatus"
	CmdReloadConfig            = "reloadconfig"
	CmdSetConfig               = "setconfig"
	CmdAddAdmin                = "addadmin"
	CmdRemoveAdmin             = "removeadmin"
	CmdListAdmins              = "listadmins"
	CmdSetLayerEnabled         = "setlayerenabled"
	CmdAddMerchantWhitelist    = "addmerchantwhitelist"
	CmdRemoveMerchantWhitelist = "removemerchantwhitelist"
	CmdClearNullifierCache     = "clearnullifiercache"
	CmdShutdown                = "shutdown"
)

// requiredRole maps each command to the minimum role it requires.
var requiredRole = map[string]Role{
	CmdPing:                    RoleMonitor,
	CmdHealth:                  RoleMonitor,
	CmdGetConfig:               RoleMonitor,
	CmdGetStats:                RoleMonitor,
	CmdGetLogs:                 RoleMonitor,
	CmdListConnections:         RoleOperator,
	CmdGetNullifierStatus:      RoleOperator,
	CmdGetRPCHealth:            RoleOperator,
	CmdQuerySession:            RoleOperator,
	CmdGetLayerStatus:          RoleOperator,
	CmdReloadConfig:            RoleSuperAdmin,
	CmdSetConfig:               RoleSuperAdmin,
	CmdAddAdmin:                RoleSuperAdmin,
	CmdRemoveAdmin:             RoleSuperAdmin,
	CmdListAdmins:              RoleSuperAdmin,
	CmdSetLayerEnabled:         RoleSuperAdmin,
	CmdAddMerchantWhitelist:    RoleSuperAdmin,
	CmdRemoveMerchantWhitelist: RoleSuperAdmin,
	CmdClearNullifierCache:     RoleSuperAdmin,
	CmdShutdown:                RoleSuperAdmin,
}

// NormalizeCommand lower-cases and trims a command name for lookup.
func NormalizeCommand(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// RequiredRole returns the minimum role a command requires, and whether
// the command is recognized at all.
func RequiredRole(command string) (Role, bool) {
	r, ok := requiredRole[NormalizeCommand(command)]
	return r, ok
}

// Outcome is the result of dispatching one admin command.
type Outcome struct {
	Success bool
	Data    any
	Error   string
}

// Handler resolves and executes admin commands against application
// state. Each method corresponds to one command in the taxonomy;
// Dispatch routes by normalized command name.
type Handler struct {
	Deps Dependencies
}

// Dependencies is everything a command handler may need. Fields may be
// nil when a command that needs them is never invoked; commands that
// require a nil dependency fail closed with an explicit error rather
// than panicking.
type Dependencies struct {
	Roster        *Roster
	GetConfig     func() map[string]any
	GetStats      func() map[string]any
	GetLogs       func(lines int, level string) []string
	Connections   func() []string
	NullifierInfo func() map[string]any
	RPCHealth     func() map[string]any
	SessionInfo   func(id string) (map[string]any, error)
	LayerStatus   func() map[string]any
	ReloadConfig  func() error
	SetConfig     func(key, value string) error
	SetLayerEnabled func(layer int, enabled bool) error
	AddWhitelist  func(addr string) error
	RemoveWhitelist func(addr string) error
	ClearNullifierCache func() error
	RequestShutdown func(delaySecs int) error
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{Deps: deps}
}

// Dispatch executes command with the given args against an admin whose
// role has already been authorized by the caller.
func (h *Handler) Dispatch(admin *Admin, command string, args json.RawMessage) Outcome {
	switch NormalizeCommand(command) {
	case CmdPing:
		return Outcome{Success: true, Data: map[string]any{"pong": true}}
	case CmdHealth:
		return h.health()
	case CmdGetConfig:
		return h.getConfig()
	case CmdGetStats:
		return h.getStats()
	case CmdGetLogs:
		return h.getLogs(args)
	case CmdListConnections:
		return h.listConnections()
	case CmdGetNullifierStatus:
		return h.nullifierStatus()
	case CmdGetRPCHealth:
		return h.rpcHealth()
	case CmdQuerySession:
		return h.querySession(args)
	case CmdGetLayerStatus:
		return h.layerStatus()
	case CmdReloadConfig:
		return h.reloadConfig()
	case CmdSetConfig:
		return h.setConfig(args)
	case CmdAddAdmin:
		return h.addAdmin(args)
	case CmdRemoveAdmin:
		return h.removeAdmin(args)
	case CmdListAdmins:
		return h.listAdmins()
	case CmdSetLayerEnabled:
		return h.setLayerEnabled(args)
	case CmdAddMerchantWhitelist:
		return h.addWhitelist(args)
	case CmdRemoveMerchantWhitelist:
		return h.removeWhitelist(args)
	case CmdClearNullifierCache:
		return h.clearNullifierCache(args)
	case CmdShutdown:
		return h.shutdown(args)
	default:
		return Outcome{Error: fmt.Sprintf("unrecognized command %q", command)}
	}
}

func fail(format string, args ...any) Outcome {
	return Outcome{Error: fmt.Sprintf(format, args...)}
}

func (h *Handler) health() Outcome {
	if h.Deps.GetStats == nil {
		return Outcome{Success: true, Data: map[string]any{"status": "ok"}}
	}
	return Outcome{Success: true, Data: h.Deps.GetStats()}
}

func (h *Handler) getConfig() Outcome {
	if h.Deps.GetConfig == nil {
		return fail("config accessor not configured")
	}
	return Outcome{Success: true, Data: h.Deps.GetConfig()}
}

func (h *Handler) getStats() Outcome {
	if h.Deps.GetStats == nil {
		return fail("stats accessor not configured")
	}
	return Outcome{Success: true, Data: h.Deps.GetStats()}
}

type getLogsArgs struct {
	Lines int    `json:"lines"`
	Level string `json:"level"`
}

func (h *Handler) getLogs(raw json.RawMessage) Outcome {
	if h.Deps.GetLogs == nil {
		return fail("log accessor not configured")
	}
	var a getLogsArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail("malformed args: %v", err)
		}
	}
	if a.Lines <= 0 {
		a.Lines = 100
	}
	return Outcome{Success: true, Data: h.Deps.GetLogs(a.Lines, a.Level)}
}

func (h *Handler) listConnections() Outcome {
	if h.Deps.Connections == nil {
		return fail("connections accessor not configured")
	}
	return Outcome{Success: true, Data: h.Deps.Connections()}
}

func (h *Handler) nullifierStatus() Outcome {
	if h.Deps.NullifierInfo == nil {
		return fail("nullifier accessor not configured")
	}
	return Outcome{Success: true, Data: h.Deps.NullifierInfo()}
}

func (h *Handler) rpcHealth() Outcome {
	if h.Deps.RPCHealth == nil {
		return fail("rpc health accessor not configured")
	}
	return Outcome{Success: true, Data: h.Deps.RPCHealth()}
}

type querySessionArgs struct {
	ID string `json:"id"`
}

func (h *Handler) querySession(raw json.RawMessage) Outcome {
	if h.Deps.SessionInfo == nil {
		return fail("session accessor not configured")
	}
	var a querySessionArgs
	if err := json.Unmarshal(raw, &a); err != nil || a.ID == "" {
		return fail("args must include a non-empty id")
	}
	info, err := h.Deps.SessionInfo(a.ID)
	if err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true, Data: info}
}

func (h *Handler) layerStatus() Outcome {
	if h.Deps.LayerStatus == nil {
		return fail("layer status accessor not configured")
	}
	return Outcome{Success: true, Data: h.Deps.LayerStatus()}
}

func (h *Handler) reloadConfig() Outcome {
	if h.Deps.ReloadConfig == nil {
		return fail("reload not configured")
	}
	if err := h.Deps.ReloadConfig(); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

type setConfigArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Handler) setConfig(raw json.RawMessage) Outcome {
	if h.Deps.SetConfig == nil {
		return fail("set config not configured")
	}
	var a setConfigArgs
	if err := json.Unmarshal(raw, &a); err != nil || a.Key == "" {
		return fail("args must include a non-empty key")
	}
	if err := h.Deps.SetConfig(a.Key, a.Value); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

type addAdminArgs struct {
	Name   string `json:"name"`
	PubKey string `json:"pubkey"`
	Role   string `json:"role"`
}

func (h *Handler) addAdmin(raw json.RawMessage) Outcome {
	if h.Deps.Roster == nil {
		return fail("roster not configured")
	}
	var a addAdminArgs
	if err := json.Unmarshal(raw, &a); err != nil || a.Name == "" || a.PubKey == "" {
		return fail("args must include name and pubkey")
	}
	entry, err := ParseRosterEnv(fmt.Sprintf("%s:%s:%s", a.Name, a.PubKey, a.Role))
	if err != nil {
		return fail("%v", err)
	}
	for _, admin := range entry.List() {
		h.Deps.Roster.Add(admin)
	}
	return Outcome{Success: true}
}

type removeAdminArgs struct {
	PubKey string `json:"pubkey"`
}

func (h *Handler) removeAdmin(raw json.RawMessage) Outcome {
	if h.Deps.Roster == nil {
		return fail("roster not configured")
	}
	var a removeAdminArgs
	if err := json.Unmarshal(raw, &a); err != nil || a.PubKey == "" {
		return fail("args must include pubkey")
	}
	h.Deps.Roster.Remove(a.PubKey)
	return Outcome{Success: true}
}

func (h *Handler) listAdmins() Outcome {
	if h.Deps.Roster == nil {
		return fail("roster not configured")
	}
	admins := h.Deps.Roster.List()
	masked := make([]map[string]any, 0, len(admins))
	for _, a := range admins {
		masked = append(masked, a.Masked())
	}
	return Outcome{Success: true, Data: masked}
}

type setLayerEnabledArgs struct {
	Layer   int  `json:"layer"`
	Enabled bool `json:"enabled"`
}

func (h *Handler) setLayerEnabled(raw json.RawMessage) Outcome {
	if h.Deps.SetLayerEnabled == nil {
		return fail("layer control not configured")
	}
	var a setLayerEnabledArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return fail("malformed args: %v", err)
	}
	if err := h.Deps.SetLayerEnabled(a.Layer, a.Enabled); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

type whitelistArgs struct {
	Address string `json:"addr"`
}

func (h *Handler) addWhitelist(raw json.RawMessage) Outcome {
	if h.Deps.AddWhitelist == nil {
		return fail("whitelist control not configured")
	}
	var a whitelistArgs
	if err := json.Unmarshal(raw, &a); err != nil || a.Address == "" {
		return fail("args must include addr")
	}
	if err := h.Deps.AddWhitelist(a.Address); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

func (h *Handler) removeWhitelist(raw json.RawMessage) Outcome {
	if h.Deps.RemoveWhitelist == nil {
		return fail("whitelist control not configured")
	}
	var a whitelistArgs
	if err := json.Unmarshal(raw, &a); err != nil || a.Address == "" {
		return fail("args must include addr")
	}
	if err := h.Deps.RemoveWhitelist(a.Address); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

type clearNullifierCacheArgs struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) clearNullifierCache(raw json.RawMessage) Outcome {
	if h.Deps.ClearNullifierCache == nil {
		return fail("nullifier cache control not configured")
	}
	var a clearNullifierCacheArgs
	if err := json.Unmarshal(raw, &a); err != nil || !a.Confirm {
		return fail("args must include confirm=true")
	}
	if err := h.Deps.ClearNullifierCache(); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

type shutdownArgs struct {
	DelaySecs int `json:"delay_secs"`
}

func (h *Handler) shutdown(raw json.RawMessage) Outcome {
	if h.Deps.RequestShutdown == nil {
		return fail("shutdown not configured")
	}
	var a shutdownArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail("malformed args: %v", err)
		}
	}
	if err := h.Deps.RequestShutdown(a.DelaySecs); err != nil {
		return fail("%v", err)
	}
	return Outcome{Success: true}
}

// Package portal wraps the backend's device-action endpoints in typed calls.
// Permission gating happens in the session controller before these are
// invoked; the server independently enforces RBAC and writes the audit trail.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manleysolutions/true911-portal/apiclient"
)

// ActionResult is the common response shape of the action endpoints.
type ActionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMS *int   `json:"latency_ms,omitempty"`
}

// E911Address is a dispatchable address update for a site.
type E911Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Actions issues device and incident operations against the backend.
type Actions struct {
	api *apiclient.Client
}

func NewActions(api *apiclient.Client) (*Actions, error) {
	if api == nil {
		return nil, errors.New("[NewActions] api client is required")
	}
	return &Actions{api: api}, nil
}

type siteAction struct {
	SiteID string `json:"site_id"`
}

// Ping checks reachability of a site's device.
func (a *Actions) Ping(ctx context.Context, siteID string) (*ActionResult, error) {
	return a.post(ctx, "/actions/ping", siteAction{SiteID: siteID})
}

// Reboot remotely restarts a site's device.
func (a *Actions) Reboot(ctx context.Context, siteID string) (*ActionResult, error) {
	return a.post(ctx, "/actions/reboot", siteAction{SiteID: siteID})
}

// UpdateE911 replaces the dispatchable address registered for a site.
func (a *Actions) UpdateE911(ctx context.Context, siteID string, addr E911Address) (*ActionResult, error) {
	return a.post(ctx, "/actions/update-e911", struct {
		SiteID string `json:"site_id"`
		E911Address
	}{SiteID: siteID, E911Address: addr})
}

// UpdateHeartbeat changes a site's check-in interval.
func (a *Actions) UpdateHeartbeat(ctx context.Context, siteID string, intervalMinutes int) (*ActionResult, error) {
	return a.post(ctx, "/actions/update-heartbeat", struct {
		SiteID          string `json:"site_id"`
		IntervalMinutes int    `json:"interval_minutes"`
	}{SiteID: siteID, IntervalMinutes: intervalMinutes})
}

// RestartContainer restarts a named container on a site's device. An empty
// name restarts the primary container.
func (a *Actions) RestartContainer(ctx context.Context, siteID, containerName string) (*ActionResult, error) {
	return a.post(ctx, "/actions/restart-container", struct {
		SiteID        string `json:"site_id"`
		ContainerName string `json:"container_name,omitempty"`
	}{SiteID: siteID, ContainerName: containerName})
}

// PullLogs requests a log pull from a container on a site's device.
func (a *Actions) PullLogs(ctx context.Context, siteID, containerName string) (*ActionResult, error) {
	return a.post(ctx, "/actions/pull-logs", struct {
		SiteID        string `json:"site_id"`
		ContainerName string `json:"container_name,omitempty"`
	}{SiteID: siteID, ContainerName: containerName})
}

// SwitchChannel moves a site's device onto a different uplink channel.
func (a *Actions) SwitchChannel(ctx context.Context, siteID, channel string) (*ActionResult, error) {
	return a.post(ctx, "/actions/switch-channel", struct {
		SiteID  string `json:"site_id"`
		Channel string `json:"channel"`
	}{SiteID: siteID, Channel: channel})
}

// AckIncident acknowledges an open incident.
func (a *Actions) AckIncident(ctx context.Context, incidentID string) (*ActionResult, error) {
	return a.post(ctx, fmt.Sprintf("/incidents/%s/ack", incidentID), nil)
}

// CloseIncident closes an incident with resolution notes.
func (a *Actions) CloseIncident(ctx context.Context, incidentID, notes string) (*ActionResult, error) {
	if notes == "" {
		notes = "Closed via portal."
	}
	return a.post(ctx, fmt.Sprintf("/incidents/%s/close", incidentID), struct {
		ResolutionNotes string `json:"resolution_notes"`
	}{ResolutionNotes: notes})
}

// RecordReportAudit writes the audit record for a client-side report export.
// Report generation itself happens in the browser; only the trail is
// server-side.
func (a *Actions) RecordReportAudit(ctx context.Context, sections []string) error {
	return a.api.CallJSON(ctx, http.MethodPost, "/audits", map[string]any{
		"audit_id":    uid("AUD"),
		"request_id":  uid("REQ"),
		"action_type": "GENERATE_REPORT",
		"site_id":     nil,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"result":      "success",
		"details":     "Report generated. " + strings.Join(sections, ", "),
	}, nil)
}

func (a *Actions) post(ctx context.Context, path string, body any) (*ActionResult, error) {
	var result ActionResult
	if err := a.api.CallJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// uid builds a prefixed identifier in the backend's audit id format.
func uid(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

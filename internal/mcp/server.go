package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/importer"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
	"github.com/paularlott/mcp"
)

// Version is announced to MCP clients.
const Version = "1.0.0"

// Server wraps the MCP server with impact storage
type Server struct {
	mcpServer *mcp.Server
	storage   storage.Storage
	auth      *auth.Authenticator
}

// NewServer creates a new MCP server exposing impacts and the IP address
// listing. Requests authenticate with the same tokens as the REST API.
func NewServer(storage storage.Storage, authenticator *auth.Authenticator) *Server {
	s := &Server{
		mcpServer: mcp.NewServer("gestion-impacts", Version),
		storage:   storage,
		auth:      authenticator,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.RegisterTool(
		mcp.NewTool("impact_list", "List impacts, optionally filtered by text or by the object they are attached to",
			mcp.String("query", "Search the impact and description text"),
			mcp.String("ip_address", "IP address ID or address (e.g. 10.0.0.1/24)"),
			mcp.String("vrf", "VRF ID or name; narrows ip_address and filters impacts"),
			mcp.String("device", "Device ID or name"),
			mcp.String("vm", "Virtual machine ID or name"),
			mcp.String("redundancy", "Filter on redundancy (true or false)"),
		),
		s.handleImpactList,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("impact_get", "Get an impact by ID",
			mcp.String("id", "Impact ID", mcp.Required()),
		),
		s.handleImpactGet,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("impact_save", "Create a new impact or update an existing one. If id is provided it updates, otherwise creates. Exactly one of ip_address, device or vm must be set.",
			mcp.String("id", "Impact ID (if updating an existing impact)"),
			mcp.String("impact", "Impact text", mcp.Required()),
			mcp.String("description", "Description"),
			mcp.String("redundancy", "Whether the object is redundant (true or false)"),
			mcp.String("ip_address", "IP address ID or address"),
			mcp.String("vrf", "VRF name, to pick the IP address when the same address exists in several VRFs"),
			mcp.String("device", "Device ID or name"),
			mcp.String("vm", "Virtual machine ID or name"),
		),
		s.handleImpactSave,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("impact_delete", "Delete an impact",
			mcp.String("id", "Impact ID", mcp.Required()),
		),
		s.handleImpactDelete,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("ip_address_impacts", "List IP addresses with what they are assigned to and their impact",
			mcp.String("query", "Search address, VRF, assigned object and impact"),
			mcp.String("vrf", "VRF ID or name"),
			mcp.String("has_impact", "Only addresses with (true) or without (false) an impact"),
			mcp.String("limit", "Maximum number of rows (default 100)"),
		),
		s.handleIPAddressImpacts,
	)
}

// ImpactQuery holds the impact_list parameters.
type ImpactQuery struct {
	Query      string
	IPAddress  string
	VRF        string
	Device     string
	VM         string
	Redundancy string
}

// SaveRequest holds the impact_save parameters.
type SaveRequest struct {
	ID          string
	Impact      string
	Description string
	Redundancy  string
	IPAddress   string
	VRF         string
	Device      string
	VM          string
}

// ListingQuery holds the ip_address_impacts parameters.
type ListingQuery struct {
	Query     string
	VRF       string
	HasImpact string
	Limit     string
}

const defaultListingLimit = 100

func (s *Server) handleImpactList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	q := ImpactQuery{
		Query:      req.StringOr("query", ""),
		IPAddress:  req.StringOr("ip_address", ""),
		VRF:        req.StringOr("vrf", ""),
		Device:     req.StringOr("device", ""),
		VM:         req.StringOr("vm", ""),
		Redundancy: req.StringOr("redundancy", ""),
	}
	text, err := s.ListImpacts(ctx, q)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(text), nil
}

func (s *Server) handleImpactGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	id, err := req.String("id")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("id is required")
	}
	text, err := s.GetImpact(ctx, id)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(text), nil
}

func (s *Server) handleImpactSave(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	impact, err := req.String("impact")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("impact is required")
	}
	sr := SaveRequest{
		ID:          req.StringOr("id", ""),
		Impact:      impact,
		Description: req.StringOr("description", ""),
		Redundancy:  req.StringOr("redundancy", ""),
		IPAddress:   req.StringOr("ip_address", ""),
		VRF:         req.StringOr("vrf", ""),
		Device:      req.StringOr("device", ""),
		VM:          req.StringOr("vm", ""),
	}
	text, err := s.SaveImpact(ctx, sr)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(text), nil
}

func (s *Server) handleImpactDelete(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	id, err := req.String("id")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("id is required")
	}
	text, err := s.DeleteImpact(ctx, id)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(text), nil
}

func (s *Server) handleIPAddressImpacts(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	q := ListingQuery{
		Query:     req.StringOr("query", ""),
		VRF:       req.StringOr("vrf", ""),
		HasImpact: req.StringOr("has_impact", ""),
		Limit:     req.StringOr("limit", ""),
	}
	text, err := s.ListIPAddressImpacts(ctx, q)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResponseText(text), nil
}

// paramError is a caller mistake, reported as invalid params.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

// toolError maps an error to the MCP error kind. Only storage failures are
// internal.
func toolError(err error) error {
	var pe *paramError
	var rowErrs importer.Errors
	var verrs *model.ValidationErrors
	var fieldErr *storage.FieldError
	switch {
	case errors.As(err, &pe), errors.As(err, &rowErrs), errors.As(err, &verrs), errors.As(err, &fieldErr):
		return mcp.NewToolErrorInvalidParams(err.Error())
	case errors.Is(err, storage.ErrImpactNotFound),
		errors.Is(err, storage.ErrDuplicateImpact),
		errors.Is(err, storage.ErrIPAddressNoVRF),
		errors.Is(err, storage.ErrReferenceNotFound),
		errors.Is(err, storage.ErrPermissionDenied):
		return mcp.NewToolErrorInvalidParams(err.Error())
	}
	log.Error("MCP tool failed", "error", err)
	return mcp.NewToolErrorInternal(err.Error())
}

func requireAction(ctx context.Context, action string) (*model.Actor, error) {
	actor := auth.ActorFrom(ctx)
	if !actor.Permission.Can(action) {
		return nil, fmt.Errorf("%s: %w", action, storage.ErrPermissionDenied)
	}
	return actor, nil
}

func parseID(name, v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid %s: %s", name, v)
	}
	return id, nil
}

func parseBool(name, v string) (*bool, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	b, err := importer.ParseBool(v)
	if err != nil {
		return nil, invalid("invalid %s: %s", name, v)
	}
	return &b, nil
}

// resolveVRF accepts a VRF ID or name.
func (s *Server) resolveVRF(ctx context.Context, v string) (*model.VRF, error) {
	var vrf *model.VRF
	var err error
	if id, ok := importer.Ref(v).ID(); ok {
		vrf, err = s.storage.GetVRF(ctx, id)
	} else {
		vrf, err = s.storage.FindVRFByName(ctx, v)
	}
	if errors.Is(err, storage.ErrVRFNotFound) {
		return nil, invalid("VRF not found: %s", v)
	}
	return vrf, err
}

// resolveRefs turns ID-or-name references into ids the way imports do.
func (s *Server) resolveRefs(ctx context.Context, rec importer.Record) (*model.Impact, error) {
	impacts, err := importer.Resolve(ctx, s.storage, []importer.Record{rec})
	if err != nil {
		return nil, err
	}
	return &impacts[0], nil
}

// ListImpacts runs impact_list.
func (s *Server) ListImpacts(ctx context.Context, q ImpactQuery) (string, error) {
	actor, err := requireAction(ctx, model.ActionView)
	if err != nil {
		return "", err
	}

	filter := &model.ImpactFilter{Query: strings.TrimSpace(q.Query), VRFIn: actor.Permission.VRFIDs}
	if filter.Redundancy, err = parseBool("redundancy", q.Redundancy); err != nil {
		return "", err
	}

	// Attachment filters reuse the import resolution; the impact text only
	// satisfies its required check.
	rec := importer.Record{Impact: "-"}
	if q.IPAddress != "" {
		rec.IPAddress, rec.VRF = importer.Ref(q.IPAddress), importer.Ref(q.VRF)
	}
	rec.Device, rec.VM = importer.Ref(q.Device), importer.Ref(q.VM)
	if !rec.IPAddress.IsZero() || !rec.Device.IsZero() || !rec.VM.IsZero() {
		if n := countSet(q.IPAddress, q.Device, q.VM); n > 1 {
			return "", invalid("filter on only one of ip_address, device or vm")
		}
		ref, err := s.resolveRefs(ctx, rec)
		if err != nil {
			return "", err
		}
		filter.IPAddressID, filter.DeviceID, filter.VMID = ref.IPAddressID, ref.DeviceID, ref.VMID
	}
	if q.VRF != "" && q.IPAddress == "" {
		vrf, err := s.resolveVRF(ctx, q.VRF)
		if err != nil {
			return "", err
		}
		filter.VRFID = &vrf.ID
	}

	impacts, total, err := s.storage.ListImpacts(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(impacts) == 0 {
		return "No impacts found", nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d impacts:\n\n", total)
	for i := range impacts {
		result.WriteString(s.formatImpactSummary(ctx, &impacts[i]))
		result.WriteString("\n")
	}
	return result.String(), nil
}

func countSet(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}

// loadImpact fetches an impact the actor may see.
func (s *Server) loadImpact(ctx context.Context, actor *model.Actor, idParam string) (*model.Impact, error) {
	id, err := parseID("id", idParam)
	if err != nil {
		return nil, err
	}
	impact, err := s.storage.GetImpact(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Permission.Permits(impact) {
		return nil, storage.ErrImpactNotFound
	}
	return impact, nil
}

// GetImpact runs impact_get.
func (s *Server) GetImpact(ctx context.Context, id string) (string, error) {
	actor, err := requireAction(ctx, model.ActionView)
	if err != nil {
		return "", err
	}
	impact, err := s.loadImpact(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return s.formatImpactSummary(ctx, impact), nil
}

// SaveImpact runs impact_save.
func (s *Server) SaveImpact(ctx context.Context, sr SaveRequest) (string, error) {
	action := model.ActionAdd
	if sr.ID != "" {
		action = model.ActionChange
	}
	actor, err := requireAction(ctx, action)
	if err != nil {
		return "", err
	}

	redundancy, err := parseBool("redundancy", sr.Redundancy)
	if err != nil {
		return "", err
	}
	rec := importer.Record{
		Impact:      strings.TrimSpace(sr.Impact),
		Description: strings.TrimSpace(sr.Description),
		Redundancy:  redundancy != nil && *redundancy,
		IPAddress:   importer.Ref(sr.IPAddress),
		VRF:         importer.Ref(sr.VRF),
		Device:      importer.Ref(sr.Device),
		VM:          importer.Ref(sr.VM),
	}
	resolved, err := s.resolveRefs(ctx, rec)
	if err != nil {
		return "", err
	}

	opts := auth.WriteOptions(ctx)
	if sr.ID == "" {
		if err := s.storage.CreateImpact(ctx, resolved, opts); err != nil {
			return "", err
		}
		log.Info("Impact created via MCP", "id", resolved.ID, "actor", opts.Actor)
		return fmt.Sprintf("Created impact %s (ID: %d)", resolved.Impact, resolved.ID), nil
	}

	existing, err := s.loadImpact(ctx, actor, sr.ID)
	if err != nil {
		return "", err
	}
	resolved.ID = existing.ID
	resolved.Created = existing.Created
	if sr.Redundancy == "" {
		resolved.Redundancy = existing.Redundancy
	}
	if err := s.storage.UpdateImpact(ctx, resolved, opts); err != nil {
		return "", err
	}
	log.Info("Impact updated via MCP", "id", resolved.ID, "actor", opts.Actor)
	return fmt.Sprintf("Updated impact %s (ID: %d)", resolved.Impact, resolved.ID), nil
}

// DeleteImpact runs impact_delete.
func (s *Server) DeleteImpact(ctx context.Context, id string) (string, error) {
	actor, err := requireAction(ctx, model.ActionDelete)
	if err != nil {
		return "", err
	}
	impact, err := s.loadImpact(ctx, actor, id)
	if err != nil {
		return "", err
	}
	opts := auth.WriteOptions(ctx)
	if err := s.storage.DeleteImpact(ctx, impact.ID, opts); err != nil {
		return "", err
	}
	log.Info("Impact deleted via MCP", "id", impact.ID, "actor", opts.Actor)
	return fmt.Sprintf("Deleted impact %s (ID: %d)", impact.Impact, impact.ID), nil
}

// ListIPAddressImpacts runs ip_address_impacts.
func (s *Server) ListIPAddressImpacts(ctx context.Context, q ListingQuery) (string, error) {
	actor, err := requireAction(ctx, model.ActionView)
	if err != nil {
		return "", err
	}

	filter := &model.ListingFilter{
		Query: strings.TrimSpace(q.Query),
		VRFIn: actor.Permission.VRFIDs,
		Limit: defaultListingLimit,
	}
	if filter.HasImpact, err = parseBool("has_impact", q.HasImpact); err != nil {
		return "", err
	}
	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil || n <= 0 {
			return "", invalid("invalid limit: %s", q.Limit)
		}
		filter.Limit = n
	}
	if q.VRF != "" {
		vrf, err := s.resolveVRF(ctx, q.VRF)
		if err != nil {
			return "", err
		}
		filter.VRFID = &vrf.ID
	}

	rows, total, err := s.storage.ListIPAddressImpacts(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "No IP addresses found", nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Showing %d of %d IP addresses:\n\n", len(rows), total)
	for _, row := range rows {
		vrf := "-"
		if row.VRFName != nil {
			vrf = *row.VRFName
		}
		impact := "-"
		if row.Impact != nil {
			impact = *row.Impact
			if row.Redundancy != nil && *row.Redundancy {
				impact += " (redundant)"
			}
		}
		fmt.Fprintf(&result, "- %s [%s] %s: %s\n", row.Address, vrf, row.AssignedTo, impact)
	}
	return result.String(), nil
}

func (s *Server) formatImpactSummary(ctx context.Context, impact *model.Impact) string {
	var result strings.Builder
	fmt.Fprintf(&result, "Impact: %s\n", impact.Impact)
	fmt.Fprintf(&result, "ID: %d\n", impact.ID)
	if impact.Description != "" {
		fmt.Fprintf(&result, "Description: %s\n", impact.Description)
	}
	fmt.Fprintf(&result, "Redundancy: %t\n", impact.Redundancy)
	if impact.IPAddressID != nil {
		if ip, err := s.storage.GetIPAddress(ctx, *impact.IPAddressID); err == nil {
			fmt.Fprintf(&result, "IP address: %s\n", ip.Address)
		}
	}
	if impact.VRFID != nil {
		if vrf, err := s.storage.GetVRF(ctx, *impact.VRFID); err == nil {
			fmt.Fprintf(&result, "VRF: %s\n", vrf.Name)
		}
	}
	if impact.DeviceID != nil {
		if device, err := s.storage.GetDevice(ctx, *impact.DeviceID); err == nil {
			fmt.Fprintf(&result, "Device: %s\n", device.Name)
		}
	}
	if impact.VMID != nil {
		if vm, err := s.storage.GetVirtualMachine(ctx, *impact.VMID); err == nil {
			fmt.Fprintf(&result, "Virtual machine: %s\n", vm.Name)
		}
	}
	return result.String()
}

// HandleRequest authenticates the bearer token and serves the MCP request
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	actor := model.Anonymous()
	if s.auth != nil && s.auth.Enabled() {
		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		a, ok := s.auth.Authenticate(token)
		if !ok {
			log.Warn("MCP authentication failed", "remote", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		actor = a
	}

	s.mcpServer.HandleRequest(w, r.WithContext(auth.WithActor(r.Context(), actor)))
}

// GetHTTPHandler returns the HTTP handler for the MCP server
func (s *Server) GetHTTPHandler() http.HandlerFunc {
	return s.HandleRequest
}

// LogStartup logs MCP server startup information
func (s *Server) LogStartup() {
	log.Info("MCP Server initialized", "version", Version)
	if s.auth != nil && s.auth.Enabled() {
		log.Info("MCP authentication enabled", "type", "Bearer token")
	} else {
		log.Info("MCP authentication disabled")
	}
	tools := s.mcpServer.ListTools()
	log.Info("MCP tools registered", "count", len(tools))
	for _, tool := range tools {
		log.Debug("MCP tool registered", "name", tool.Name, "description", tool.Description)
	}
}

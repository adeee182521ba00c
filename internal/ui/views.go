package ui

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/importer"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/navigation"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// listRow is a listing row with its rendered actions.
type listRow struct {
	model.IPAddressImpact
	Actions RowActions
}

// listPage is the IP address listing.
type listPage struct {
	Rows     []listRow
	Count    int
	Filter   *model.ListingFilter
	VRFs     []model.VRF
	Query    url.Values
	Page     int
	Pages    int
	PrevURL  string
	NextURL  string
	BulkEdit bool
	BulkDel  bool

	ExportCSV  string
	ExportYAML string
}

// list handles GET impacts/, the IP address listing. ?export=csv|yaml
// downloads every matching row instead.
func (u *UI) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := u.require(w, r, model.ActionView)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter, page, err := u.listingFilter(q)
	if err != nil {
		u.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter.VRFIn = actor.Permission.VRFIDs

	if export := q.Get("export"); export != "" {
		u.exportListing(w, r, filter, export)
		return
	}

	rows, count, err := u.storage.ListIPAddressImpacts(r.Context(), filter)
	if err != nil {
		u.internalError(w, r, err)
		return
	}
	vrfs, err := u.storage.ListVRFs(r.Context(), nil)
	if err != nil {
		u.internalError(w, r, err)
		return
	}

	ret := returnURL(r, "")
	data := listPage{
		Count:    count,
		Filter:   filter,
		VRFs:     vrfs,
		Query:    q,
		Page:     page,
		Pages:    max(1, (count+filter.Limit-1)/filter.Limit),
		BulkEdit: actor.Permission.Can(model.ActionChange),
		BulkDel:  actor.Permission.Can(model.ActionDelete),
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, listRow{IPAddressImpact: row, Actions: rowActions(row, actor.Permission, ret)})
	}
	data.ExportCSV = exportURL(r.URL, importer.FormatCSV)
	data.ExportYAML = exportURL(r.URL, importer.FormatYAML)
	if page > 1 {
		data.PrevURL = pageURL(r.URL, page-1)
	}
	if page < data.Pages {
		data.NextURL = pageURL(r.URL, page+1)
	}

	u.render(w, r, http.StatusOK, "list", Title, data, nil)
}

// listingFilter reads the filter form and the page number.
func (u *UI) listingFilter(q url.Values) (*model.ListingFilter, int, error) {
	filter := &model.ListingFilter{
		Query:   strings.TrimSpace(q.Get("q")),
		Address: strings.TrimSpace(q.Get("address")),
		Limit:   u.pageSize,
	}

	var err error
	if v := q.Get("vrf_id"); v != "" {
		id, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || id <= 0 {
			return nil, 0, fmt.Errorf("invalid vrf_id: %s", v)
		}
		filter.VRFID = &id
	}
	if filter.HasImpact, err = triState(q, "has_impact"); err != nil {
		return nil, 0, err
	}
	if filter.Redundancy, err = triState(q, "redundancy"); err != nil {
		return nil, 0, err
	}
	if v := q.Get("per_page"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 {
			return nil, 0, fmt.Errorf("invalid per_page: %s", v)
		}
		filter.Limit = n
	}

	page := 1
	if v := q.Get("page"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 {
			return nil, 0, fmt.Errorf("invalid page: %s", v)
		}
		page = n
	}
	filter.Offset = (page - 1) * filter.Limit
	return filter, page, nil
}

// triState reads an optional yes/no select.
func triState(q url.Values, key string) (*bool, error) {
	switch q.Get(key) {
	case "":
		return nil, nil
	case "true":
		return boolPtr(true), nil
	case "false":
		return boolPtr(false), nil
	}
	return nil, fmt.Errorf("invalid %s: %s", key, q.Get(key))
}

func pageURL(current *url.URL, page int) string {
	q := current.Query()
	q.Set("page", strconv.Itoa(page))
	return current.Path + "?" + q.Encode()
}

func exportURL(current *url.URL, format importer.Format) string {
	q := current.Query()
	q.Del("page")
	q.Set("export", string(format))
	return current.Path + "?" + q.Encode()
}

func (u *UI) exportListing(w http.ResponseWriter, r *http.Request, filter *model.ListingFilter, export string) {
	if export == "table" {
		export = string(importer.FormatCSV)
	}
	format, err := importer.ParseFormat(export)
	if err != nil || format == importer.FormatJSON {
		u.renderError(w, r, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", export))
		return
	}

	filter.Limit, filter.Offset = 0, 0
	rows, _, err := u.storage.ListIPAddressImpacts(r.Context(), filter)
	if err != nil {
		u.internalError(w, r, err)
		return
	}

	contentType, ext := "text/csv; charset=utf-8", "csv"
	if format == importer.FormatYAML {
		contentType, ext = "text/yaml; charset=utf-8", "yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="gestion_impacts.%s"`, ext))
	if err := importer.WriteListing(w, format, rows); err != nil {
		log.Error("Failed to export listing", "error", err)
		return
	}
	log.Debug("Listing exported", "format", format, "rows", len(rows))
}

// detailPage shows one impact with the names of what it refers to.
type detailPage struct {
	Impact    *model.Impact
	Device    *model.Device
	IPAddress *model.IPAddress
	VM        *model.VirtualMachine
	VRF       *model.VRF
}

// loadImpact fetches the {id} impact, rendering 404 for missing impacts
// and impacts outside the actor's VRF constraint.
func (u *UI) loadImpact(w http.ResponseWriter, r *http.Request, actor *model.Actor) (*model.Impact, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		u.renderError(w, r, http.StatusNotFound, storage.ErrImpactNotFound.Error())
		return nil, false
	}

	impact, err := u.storage.GetImpact(r.Context(), id)
	if errors.Is(err, storage.ErrImpactNotFound) || (err == nil && !actor.Permission.Permits(impact)) {
		u.renderError(w, r, http.StatusNotFound, storage.ErrImpactNotFound.Error())
		return nil, false
	}
	if err != nil {
		u.internalError(w, r, err)
		return nil, false
	}
	return impact, true
}

// detail handles GET impacts/{id}/
func (u *UI) detail(w http.ResponseWriter, r *http.Request) {
	actor, ok := u.require(w, r, model.ActionView)
	if !ok {
		return
	}
	impact, ok := u.loadImpact(w, r, actor)
	if !ok {
		return
	}

	ctx := r.Context()
	data := detailPage{Impact: impact}
	var err error
	if impact.DeviceID != nil {
		data.Device, err = u.storage.GetDevice(ctx, *impact.DeviceID)
	}
	if err == nil && impact.IPAddressID != nil {
		data.IPAddress, err = u.storage.GetIPAddress(ctx, *impact.IPAddressID)
	}
	if err == nil && impact.VMID != nil {
		data.VM, err = u.storage.GetVirtualMachine(ctx, *impact.VMID)
	}
	if err == nil && impact.VRFID != nil {
		data.VRF, err = u.storage.GetVRF(ctx, *impact.VRFID)
	}
	if err != nil {
		u.internalError(w, r, err)
		return
	}

	u.render(w, r, http.StatusOK, "detail", impact.Impact, data, nil)
}

// add handles GET and POST impacts/add/. ?ip_address= preselects the IP
// address, as linked from listing rows without an impact.
func (u *UI) add(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.require(w, r, model.ActionAdd); !ok {
		return
	}

	impact := &model.Impact{}
	if r.Method == http.MethodGet {
		errs := &model.ValidationErrors{}
		impact.IPAddressID = formID(r, model.FieldIPAddress, errs)
		if !errs.HasErrors() {
			errs = nil
		}
		u.renderForm(w, r, http.StatusOK, impact, "Ajouter un impact", errs)
		return
	}
	u.saveForm(w, r, impact, "Ajouter un impact")
}

// edit handles GET and POST impacts/{id}/edit/
func (u *UI) edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := u.require(w, r, model.ActionChange)
	if !ok {
		return
	}
	impact, ok := u.loadImpact(w, r, actor)
	if !ok {
		return
	}

	title := "Modifier " + impact.Impact
	if r.Method == http.MethodGet {
		u.renderForm(w, r, http.StatusOK, impact, title, nil)
		return
	}
	u.saveForm(w, r, impact, title)
}

func (u *UI) saveForm(w http.ResponseWriter, r *http.Request, impact *model.Impact, title string) {
	if errs := parseImpactForm(r, impact); errs != nil {
		u.renderForm(w, r, http.StatusBadRequest, impact, title, errs)
		return
	}
	if err := impact.Validate(); err != nil {
		u.renderForm(w, r, http.StatusBadRequest, impact, title, formErrors(err))
		return
	}

	opts := auth.WriteOptions(r.Context())
	var err error
	created := impact.ID == 0
	if created {
		err = u.storage.CreateImpact(r.Context(), impact, opts)
	} else {
		err = u.storage.UpdateImpact(r.Context(), impact, opts)
	}
	if err != nil {
		errs := formErrors(err)
		if errs == nil {
			u.internalError(w, r, err)
			return
		}
		log.Warn("Impact form rejected", "actor", opts.Actor, "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrPermissionDenied) {
			status = http.StatusForbidden
		}
		u.renderForm(w, r, status, impact, title, errs)
		return
	}

	log.Info("Impact saved", "id", impact.ID, "created", created, "actor", opts.Actor)
	http.Redirect(w, r, returnURL(r, impactURL(impact.ID, "")), http.StatusSeeOther)
}

func (u *UI) renderForm(w http.ResponseWriter, r *http.Request, status int, impact *model.Impact, title string, errs *model.ValidationErrors) {
	actor := auth.ActorFrom(r.Context())
	c, err := u.loadChoices(r.Context(), actor.Permission)
	if err != nil {
		u.internalError(w, r, err)
		return
	}

	cancel := navigation.BasePath
	if impact.ID != 0 {
		cancel = impactURL(impact.ID, "")
	}
	data := impactForm{Impact: impact, Choices: c, Action: r.URL.Path, Cancel: returnURL(r, cancel)}
	u.render(w, r, status, "form", title, data, errs)
}

// deleteImpact handles GET (confirmation) and POST impacts/{id}/delete/
func (u *UI) deleteImpact(w http.ResponseWriter, r *http.Request) {
	actor, ok := u.require(w, r, model.ActionDelete)
	if !ok {
		return
	}
	impact, ok := u.loadImpact(w, r, actor)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		u.render(w, r, http.StatusOK, "delete", "Supprimer "+impact.Impact, impact, nil)
		return
	}

	opts := auth.WriteOptions(r.Context())
	if err := u.storage.DeleteImpact(r.Context(), impact.ID, opts); err != nil {
		if errs := formErrors(err); errs != nil {
			u.render(w, r, http.StatusBadRequest, "delete", "Supprimer "+impact.Impact, impact, errs)
			return
		}
		u.internalError(w, r, err)
		return
	}

	log.Info("Impact deleted", "id", impact.ID, "actor", opts.Actor)
	ret := returnURL(r, navigation.BasePath)
	if strings.HasPrefix(ret, impactURL(impact.ID, "")) {
		ret = navigation.BasePath
	}
	http.Redirect(w, r, ret, http.StatusSeeOther)
}

// bulkEdit handles POST impacts/edit/. The listing posts the selection; the
// form posts it back with _apply.
func (u *UI) bulkEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := u.require(w, r, model.ActionChange)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		u.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, ids, err := parseSelection(r)
	if err != nil {
		u.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	edit := &model.BulkEdit{Target: target, IDs: ids}
	if r.PostFormValue("_apply") == "" {
		u.renderBulkEdit(w, r, http.StatusOK, edit, nil)
		return
	}

	if errs := parseBulkEdit(r, edit); errs != nil {
		u.renderBulkEdit(w, r, http.StatusBadRequest, edit, errs)
		return
	}
	edit.Restrict(actor.Permission.DeniedFields)

	opts := auth.WriteOptions(r.Context())
	updated, err := u.storage.BulkEditImpacts(r.Context(), edit, opts)
	if err != nil {
		errs := formErrors(err)
		if errs == nil {
			u.internalError(w, r, err)
			return
		}
		log.Warn("Bulk edit rejected", "actor", opts.Actor, "error", err)
		u.renderBulkEdit(w, r, http.StatusBadRequest, edit, errs)
		return
	}

	log.Info("Impacts bulk edited", "count", len(updated), "target", target, "actor", opts.Actor)
	http.Redirect(w, r, returnURL(r, navigation.BasePath), http.StatusSeeOther)
}

func (u *UI) renderBulkEdit(w http.ResponseWriter, r *http.Request, status int, edit *model.BulkEdit, errs *model.ValidationErrors) {
	actor := auth.ActorFrom(r.Context())
	c, err := u.loadChoices(r.Context(), actor.Permission)
	if err != nil {
		u.internalError(w, r, err)
		return
	}

	data := bulkForm{
		Target:    edit.Target,
		IDs:       edit.IDs,
		Choices:   c,
		Nullable:  model.NullableFields,
		Cancel:    returnURL(r, navigation.BasePath),
		Submitted: edit,
	}
	title := fmt.Sprintf("Modifier %d objets", len(edit.IDs))
	u.render(w, r, status, "bulk_edit", title, data, errs)
}

// bulkDelete handles POST impacts/delete/. Selected IP addresses lose their
// impact; the whole selection is deleted or nothing is.
func (u *UI) bulkDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.require(w, r, model.ActionDelete); !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		u.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, ids, err := parseSelection(r)
	if err != nil {
		u.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	data := bulkForm{Target: target, IDs: ids, Cancel: returnURL(r, navigation.BasePath)}
	title := fmt.Sprintf("Supprimer %d objets", len(ids))
	if r.PostFormValue("_confirm") == "" {
		u.render(w, r, http.StatusOK, "bulk_delete", title, data, nil)
		return
	}

	opts := auth.WriteOptions(r.Context())
	n, err := u.storage.BulkDeleteImpacts(r.Context(), target, ids, opts)
	if err != nil {
		errs := formErrors(err)
		if errs == nil {
			u.internalError(w, r, err)
			return
		}
		log.Warn("Bulk delete rejected", "actor", opts.Actor, "error", err)
		u.render(w, r, http.StatusBadRequest, "bulk_delete", title, data, errs)
		return
	}

	log.Info("Impacts bulk deleted", "count", n, "target", target, "actor", opts.Actor)
	http.Redirect(w, r, returnURL(r, navigation.BasePath), http.StatusSeeOther)
}

// importPage is the import form and its result.
type importPage struct {
	Data     string
	Format   string
	Imported []model.Impact
}

const maxImportSize = 10 << 20

// importImpacts handles GET and POST impacts/import/. Data is pasted or
// uploaded as CSV (comma, semicolon or tab separated), JSON or YAML.
func (u *UI) importImpacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.require(w, r, model.ActionAdd); !ok {
		return
	}
	title := "Importer des impacts"
	if r.Method == http.MethodGet {
		u.render(w, r, http.StatusOK, "import", title, importPage{}, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	data, format, err := importSource(r)
	page := importPage{Data: data, Format: format}
	if err != nil {
		u.render(w, r, http.StatusBadRequest, "import", title, page, nonField(err.Error()))
		return
	}

	var f importer.Format
	if format != "" && format != "auto" {
		if f, err = importer.ParseFormat(format); err != nil {
			u.render(w, r, http.StatusBadRequest, "import", title, page, nonField(err.Error()))
			return
		}
	}

	recs, err := importer.Parse(strings.NewReader(data), f)
	if err != nil {
		u.render(w, r, http.StatusBadRequest, "import", title, page, nonField(err.Error()))
		return
	}
	impacts, err := importer.Resolve(r.Context(), u.storage, recs)
	if err != nil {
		var rowErrs importer.Errors
		if !errors.As(err, &rowErrs) {
			u.internalError(w, r, err)
			return
		}
		errs := &model.ValidationErrors{}
		for _, re := range rowErrs {
			errs.Add(re.Error())
		}
		u.render(w, r, http.StatusBadRequest, "import", title, page, errs)
		return
	}

	if importer.UpdatesExisting(impacts) {
		if _, ok := u.require(w, r, model.ActionChange); !ok {
			return
		}
	}

	opts := auth.WriteOptions(r.Context())
	imported, err := u.storage.ImportImpacts(r.Context(), impacts, opts)
	if err != nil {
		errs := formErrors(err)
		if errs == nil {
			u.internalError(w, r, err)
			return
		}
		log.Warn("Import rejected", "actor", opts.Actor, "error", err)
		u.render(w, r, http.StatusBadRequest, "import", title, page, errs)
		return
	}

	log.Info("Impacts imported", "count", len(imported), "actor", opts.Actor)
	u.render(w, r, http.StatusOK, "import", title, importPage{Imported: imported}, nil)
}

// importSource returns the uploaded file when there is one, else the
// pasted data.
func importSource(r *http.Request) (string, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportSize); err != nil {
			return "", "", fmt.Errorf("reading upload: %w", err)
		}
		if file, _, err := r.FormFile("upload_file"); err == nil {
			defer file.Close()
			var sb strings.Builder
			if _, err := io.Copy(&sb, file); err != nil {
				return "", "", fmt.Errorf("reading upload: %w", err)
			}
			return sb.String(), r.FormValue("format"), nil
		}
	}
	return r.FormValue("data"), r.FormValue("format"), nil
}

func nonField(msg string) *model.ValidationErrors {
	errs := &model.ValidationErrors{}
	errs.Add(msg)
	return errs
}

// changelog handles GET impacts/{id}/changelog/
func (u *UI) changelog(w http.ResponseWriter, r *http.Request) {
	actor, ok := u.require(w, r, model.ActionView)
	if !ok {
		return
	}
	impact, ok := u.loadImpact(w, r, actor)
	if !ok {
		return
	}

	changes, err := u.storage.ListObjectChanges(r.Context(), model.ImpactObjectType, impact.ID)
	if err != nil {
		u.internalError(w, r, err)
		return
	}
	u.render(w, r, http.StatusOK, "changelog", impact.Impact+" - Changelog", struct {
		Impact  *model.Impact
		Changes []model.ObjectChange
	}{impact, changes}, nil)
}

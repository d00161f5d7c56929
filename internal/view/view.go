/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pforte-idm/pforte/internal/directory"
)

// Record is the authenticated user as seen by permission checks: the flat
// output of the auth projection plus the "primaryKey" entry that the auth
// layer adds.
type Record map[string]any

// PrimaryKey returns the subject identifier of this record.
func (r Record) PrimaryKey() string {
	value, _ := r["primaryKey"].(string)
	return value
}

// HasPermission reports whether the record carries a truthy value for the
// given permission field.
func (r Record) HasPermission(permission string) bool {
	switch value := r[permission].(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	default:
		return true
	}
}

// View binds one entity kind to a subtree of the directory. It owns the DN
// layout below its base DN, the class filter for listing, and up to five
// projections that translate between directory entries and JSON records.
type View struct {
	key             string
	title           string
	description     string
	iconClasses     string
	baseDN          string
	primaryKey      string
	classes         []string
	classTerms      string
	permissions     []string
	readPermissions []string
	autoCreate      directory.Addlist
	dnPrefix        string
	dnSuffix        string

	conn directory.Connection

	list     *ListProjection
	details  *Projection
	self     *Projection
	register *Projection
	auth     *ListProjection
}

// NewView constructs a view from its spec. Cross-view references stay
// unresolved until Init runs; the registry calls it once all views exist.
func NewView(conn directory.Connection, env *Env, suffix string, spec ViewSpec) (*View, error) {
	if spec.DN == "" || spec.PrimaryKey == "" {
		return nil, fmt.Errorf("view %q: dn and primaryKey are required", spec.Key)
	}
	if len(spec.Classes) == 0 {
		return nil, fmt.Errorf("view %q: at least one object class is required", spec.Key)
	}
	if len(spec.List) == 0 || len(spec.Details) == 0 {
		return nil, fmt.Errorf("view %q: the list and details projections are required", spec.Key)
	}

	baseDN := spec.DN
	if suffix != "" {
		baseDN += "," + suffix
	}

	var classTerms strings.Builder
	for _, class := range spec.Classes {
		fmt.Fprintf(&classTerms, "(objectClass=%s)", directory.EscapeFilterValue(class))
	}

	v := &View{
		key:             spec.Key,
		title:           spec.Title,
		description:     spec.Description,
		iconClasses:     spec.IconClasses,
		baseDN:          baseDN,
		primaryKey:      spec.PrimaryKey,
		classes:         spec.Classes,
		classTerms:      classTerms.String(),
		permissions:     spec.Permissions,
		readPermissions: spec.ReadPermissions,
		dnPrefix:        spec.PrimaryKey + "=",
		dnSuffix:        "," + baseDN,
		conn:            conn,
	}

	if len(spec.AutoCreate) > 0 {
		v.autoCreate = make(directory.Addlist, len(spec.AutoCreate))
		for attr, values := range spec.AutoCreate {
			v.autoCreate[attr] = values
		}
	}

	var err error
	v.list, err = newListProjection(spec.List, env)
	if err != nil {
		return nil, fmt.Errorf("view %q: list: %w", spec.Key, err)
	}
	v.details, err = newProjection(spec.Details, env)
	if err != nil {
		return nil, fmt.Errorf("view %q: details: %w", spec.Key, err)
	}
	if len(spec.Self) > 0 {
		v.self, err = newProjection(spec.Self, env)
		if err != nil {
			return nil, fmt.Errorf("view %q: self: %w", spec.Key, err)
		}
	}
	if len(spec.Register) > 0 {
		v.register, err = newProjection(spec.Register, env)
		if err != nil {
			return nil, fmt.Errorf("view %q: register: %w", spec.Key, err)
		}
	}
	if len(spec.Auth) > 0 {
		v.auth, err = newListProjection(spec.Auth, env)
		if err != nil {
			return nil, fmt.Errorf("view %q: auth: %w", spec.Key, err)
		}
	}
	return v, nil
}

func (v *View) init(views map[string]*View) error {
	err := v.list.init(views)
	if err != nil {
		return fmt.Errorf("view %q: list: %w", v.key, err)
	}
	err = v.details.init(views)
	if err != nil {
		return fmt.Errorf("view %q: details: %w", v.key, err)
	}
	if v.self != nil {
		err = v.self.init(views)
		if err != nil {
			return fmt.Errorf("view %q: self: %w", v.key, err)
		}
	}
	if v.register != nil {
		err = v.register.init(views)
		if err != nil {
			return fmt.Errorf("view %q: register: %w", v.key, err)
		}
	}
	if v.auth != nil {
		err = v.auth.init(views)
		if err != nil {
			return fmt.Errorf("view %q: auth: %w", v.key, err)
		}
	}
	return nil
}

// Key returns the view key as used in URLs and config documents.
func (v *View) Key() string {
	return v.key
}

// PrimaryKeyAttr returns the attribute that uniquely identifies entries below
// this view's base DN.
func (v *View) PrimaryKeyAttr() string {
	return v.primaryKey
}

// HasSelf reports whether the view defines a self projection.
func (v *View) HasSelf() bool {
	return v.self != nil
}

// HasRegister reports whether the view defines a register projection.
func (v *View) HasRegister() bool {
	return v.register != nil
}

// HasAuth reports whether the view defines an auth projection.
func (v *View) HasAuth() bool {
	return v.auth != nil
}

////////////////////////////////////////////////////////////////////////////////
// DN layout

// DN returns the DN of the entry with the given primary key.
func (v *View) DN(primaryKey string) string {
	return v.dnPrefix + directory.EscapeRDNValue(primaryKey) + v.dnSuffix
}

// TryDN is like DN, but reports failure for values that cannot form a sound
// RDN instead of producing a broken DN.
func (v *View) TryDN(primaryKey string) (string, bool) {
	escaped, ok := directory.TryEscapeRDNValue(primaryKey)
	if !ok {
		return "", false
	}
	return v.dnPrefix + escaped + v.dnSuffix, true
}

// TryPrimaryKeyFromDN extracts the primary key from a DN below this view's
// base DN. DNs that do not match the view's layout report failure.
func (v *View) TryPrimaryKeyFromDN(dn string) (string, bool) {
	if !strings.HasPrefix(dn, v.dnPrefix) || !strings.HasSuffix(dn, v.dnSuffix) {
		return "", false
	}
	pk := strings.TrimSuffix(strings.TrimPrefix(dn, v.dnPrefix), v.dnSuffix)
	if pk == "" || strings.ContainsAny(pk, "=,") {
		return "", false
	}
	return pk, true
}

// ClassFilter returns the search filter matching entries of this view.
func (v *View) ClassFilter() string {
	return "(&" + v.classTerms + ")"
}

////////////////////////////////////////////////////////////////////////////////
// permission checks

func (v *View) checkWrite(user Record) error {
	for _, permission := range v.permissions {
		if user.HasPermission(permission) {
			return nil
		}
	}
	return ErrForbidden
}

func (v *View) checkRead(user Record) error {
	if len(v.readPermissions) == 0 {
		return nil
	}
	for _, permission := range v.readPermissions {
		if user.HasPermission(permission) {
			return nil
		}
	}
	//write permissions imply read access
	for _, permission := range v.permissions {
		if user.HasPermission(permission) {
			return nil
		}
	}
	return ErrForbidden
}

////////////////////////////////////////////////////////////////////////////////
// startup

// EnsureBaseDN verifies that the base DN exists. A missing base DN is created
// from the autoCreate attributes if configured, and is an error otherwise.
func (v *View) EnsureBaseDN() error {
	_, err := v.conn.Search(v.baseDN, directory.ScopeBase, "", []string{"1.1"})
	if err == nil {
		return nil
	}
	if !directory.IsNotFound(err) {
		return err
	}
	if len(v.autoCreate) == 0 {
		return fmt.Errorf("base DN %s for view %q does not exist (no autoCreate attributes configured)", v.baseDN, v.key)
	}
	return v.conn.Add(v.baseDN, v.autoCreate)
}

////////////////////////////////////////////////////////////////////////////////
// read pipelines

func (v *View) fetchEntry(dn string, attrs directory.AttributeSet) (*directory.Fetch, error) {
	names := attrs.Sorted()
	if len(names) == 0 {
		//"1.1" requests no attributes at all
		names = []string{"1.1"}
	}
	fetches, err := v.conn.Search(dn, directory.ScopeBase, "", names)
	if err != nil {
		return nil, err
	}
	if len(fetches) == 0 {
		return nil, directory.NewError(directory.KindNotFound, dn, nil)
	}
	return &fetches[0], nil
}

// GetList renders all entries of this view through the list projection.
func (v *View) GetList(user Record) ([]map[string]any, error) {
	err := v.checkRead(user)
	if err != nil {
		return nil, err
	}

	attrs := directory.AttributeSet{}
	v.list.GetFetch(attrs)
	fetches, err := v.conn.Search(v.baseDN, directory.ScopeOne, v.ClassFilter(), attrs.Sorted())
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, len(fetches))
	for idx := range fetches {
		result[idx] = v.list.Get(&fetches[idx])
	}
	return result, nil
}

// GetListEntry renders one entry through the list projection.
func (v *View) GetListEntry(user Record, primaryKey string) (map[string]any, error) {
	err := v.checkRead(user)
	if err != nil {
		return nil, err
	}
	return v.getEntryFlat(v.list, primaryKey)
}

// GetAuthEntry renders one entry through the auth projection. It runs without
// a permission check; only the auth layer calls it.
func (v *View) GetAuthEntry(primaryKey string) (map[string]any, error) {
	if v.auth == nil {
		return nil, ErrNoProjection
	}
	return v.getEntryFlat(v.auth, primaryKey)
}

func (v *View) getEntryFlat(proj *ListProjection, primaryKey string) (map[string]any, error) {
	attrs := directory.AttributeSet{}
	proj.GetFetch(attrs)
	fetch, err := v.fetchEntry(v.DN(primaryKey), attrs)
	if err != nil {
		return nil, err
	}
	return proj.Get(fetch), nil
}

// GetSelfEntry renders the caller's own entry through the self projection.
// There is no view-level permission check; every authenticated user may see
// their own record.
func (v *View) GetSelfEntry(user Record) (map[string]any, error) {
	if v.self == nil {
		return nil, ErrNoProjection
	}
	return v.getEntryNested(v.self, user.PrimaryKey())
}

// GetDetailEntry renders one entry through the details projection.
func (v *View) GetDetailEntry(user Record, primaryKey string) (map[string]any, error) {
	err := v.checkRead(user)
	if err != nil {
		return nil, err
	}
	return v.getEntryNested(v.details, primaryKey)
}

func (v *View) getEntryNested(proj *Projection, primaryKey string) (map[string]any, error) {
	attrs := directory.AttributeSet{}
	proj.GetFetch(attrs)
	fetch, err := v.fetchEntry(v.DN(primaryKey), attrs)
	if err != nil {
		return nil, err
	}
	return proj.Get(fetch), nil
}

////////////////////////////////////////////////////////////////////////////////
// write pipelines

// CreateRegister creates an entry through the register projection. It runs
// without authentication; the HTTP layer guards it with the anti-spam
// challenge instead.
func (v *View) CreateRegister(assigns Assignments) error {
	if v.register == nil {
		return ErrNoProjection
	}
	return v.create(v.register, assigns)
}

// CreateDetail creates an entry through the details projection.
func (v *View) CreateDetail(user Record, assigns Assignments) error {
	err := v.checkWrite(user)
	if err != nil {
		return err
	}
	return v.create(v.details, assigns)
}

func (v *View) create(proj *Projection, assigns Assignments) error {
	primaryKey := v.findPrimaryKey(assigns)
	if primaryKey == "" {
		return Invalid("missing primary key in assignments")
	}
	dn, ok := v.TryDN(primaryKey)
	if !ok {
		return Invalid("invalid primary key %q", primaryKey)
	}

	classes := append([]string(nil), v.classes...)
	al := directory.Addlist{"objectClass": classes}
	fetch := &directory.Fetch{
		DN:     dn,
		Values: map[string][]string{"objectClass": append([]string(nil), classes...)},
	}
	ctxs := proj.Contexts()

	err := proj.Create(fetch, al, assigns, ctxs)
	if err != nil {
		return err
	}
	err = v.conn.Add(dn, al)
	if err != nil {
		return err
	}
	return proj.SetPost(fetch, assigns, ctxs, true)
}

// findPrimaryKey scans the group assignments for the primary key attribute.
func (v *View) findPrimaryKey(assigns Assignments) string {
	for _, raw := range assigns {
		group, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if value, ok := group[v.primaryKey].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// UpdateSelf applies assignments to the caller's own entry through the self
// projection. There is no view-level permission check.
func (v *View) UpdateSelf(user Record, assigns Assignments) error {
	if v.self == nil {
		return ErrNoProjection
	}
	return v.update(v.self, user.PrimaryKey(), assigns)
}

// UpdateDetails applies assignments to one entry through the details
// projection.
func (v *View) UpdateDetails(user Record, primaryKey string, assigns Assignments) error {
	err := v.checkWrite(user)
	if err != nil {
		return err
	}
	return v.update(v.details, primaryKey, assigns)
}

func (v *View) update(proj *Projection, primaryKey string, assigns Assignments) error {
	dn := v.DN(primaryKey)
	ctxs := proj.Contexts()

	attrs := directory.AttributeSet{}
	err := proj.SetFetch(attrs, assigns, ctxs)
	if err != nil {
		return err
	}
	fetch, err := v.fetchEntry(dn, attrs)
	if err != nil {
		return err
	}

	ml := directory.Modlist{}
	err = proj.Set(fetch, ml, assigns, ctxs)
	if err != nil {
		return err
	}
	if !ml.IsEmpty() {
		err = v.conn.Modify(dn, ml)
		if err != nil {
			return err
		}
	}
	return proj.SetPost(fetch, assigns, ctxs, false)
}

// Delete removes one entry.
func (v *View) Delete(user Record, primaryKey string) error {
	err := v.checkWrite(user)
	if err != nil {
		return err
	}
	return v.conn.Delete(v.DN(primaryKey))
}

// SaveForeignField applies a modlist to one entry of this view on behalf of a
// relationship field or group of another view.
func (v *View) SaveForeignField(primaryKey string, ml directory.Modlist) error {
	return v.conn.Modify(v.DN(primaryKey), ml)
}

////////////////////////////////////////////////////////////////////////////////
// lookups

// ResolvePrimaryKeyByMail finds the entry whose mail attribute (as bound by
// the auth projection's "mail" field) carries the given address, and returns
// its primary key. Exactly one entry must match.
func (v *View) ResolvePrimaryKeyByMail(mail string) (string, error) {
	if v.auth == nil {
		return "", ErrNoProjection
	}
	mailAttr, ok := v.auth.FieldAttribute("mail")
	if !ok {
		return "", directory.NewError(directory.KindNotFound, v.baseDN, errors.New("the auth projection has no mail field"))
	}

	filter := "(&" + v.classTerms + "(" + mailAttr + "=" + directory.EscapeFilterValue(mail) + "))"
	fetches, err := v.conn.Search(v.baseDN, directory.ScopeOne, filter, []string{v.primaryKey})
	if err != nil {
		return "", err
	}
	switch len(fetches) {
	case 0:
		return "", directory.NewError(directory.KindNotFound, v.baseDN, fmt.Errorf("no entry with %s=%s", mailAttr, mail))
	case 1:
		value, ok := fetches[0].First(v.primaryKey)
		if !ok {
			return "", fmt.Errorf("entry %s has no %s value", fetches[0].DN, v.primaryKey)
		}
		return value, nil
	default:
		return "", fmt.Errorf("multiple entries with %s=%s", mailAttr, mail)
	}
}

////////////////////////////////////////////////////////////////////////////////
// config documents

// UserConfig is the per-view schema document served to authenticated clients.
type UserConfig struct {
	Key         string        `json:"key"`
	PrimaryKey  string        `json:"primaryKey"`
	Permissions []string      `json:"permissions"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	IconClasses string        `json:"iconClasses"`
	List        []FieldConfig `json:"list,omitempty"`
	Details     []GroupConfig `json:"details,omitempty"`
	Self        []GroupConfig `json:"self,omitempty"`
	Auth        []FieldConfig `json:"auth,omitempty"`
}

// PublicConfig is the per-view schema document served without authentication.
// It exists only for views with a register projection.
type PublicConfig struct {
	Key         string        `json:"key"`
	PrimaryKey  string        `json:"primaryKey"`
	Title       string        `json:"title"`
	IconClasses string        `json:"iconClasses"`
	Description string        `json:"description"`
	Register    []GroupConfig `json:"register"`
}

// UserConfig returns the schema document for authenticated clients.
func (v *View) UserConfig() UserConfig {
	cfg := UserConfig{
		Key:         v.key,
		PrimaryKey:  v.primaryKey,
		Permissions: v.permissions,
		Title:       v.title,
		Description: v.description,
		IconClasses: v.iconClasses,
		List:        v.list.Config(),
		Details:     v.details.Config(),
	}
	if v.self != nil {
		cfg.Self = v.self.Config()
	}
	if v.auth != nil {
		cfg.Auth = v.auth.Config()
	}
	return cfg
}

// PublicConfig returns the schema document for unauthenticated clients, or
// false if this view cannot be registered into.
func (v *View) PublicConfig() (PublicConfig, bool) {
	if v.register == nil {
		return PublicConfig{}, false
	}
	return PublicConfig{
		Key:         v.key,
		PrimaryKey:  v.primaryKey,
		Title:       v.title,
		IconClasses: v.iconClasses,
		Description: v.description,
		Register:    v.register.Config(),
	}, true
}

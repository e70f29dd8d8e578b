// Package navigation holds the single role→capability policy. The menu filter and the
// route guard are both derived from it.
package navigation

import (
	"sort"

	"dugtong/internal/domain"
)

// Capability something a role may do or open.
type Capability string

const (
	CapDashboard          Capability = "dashboard:view"
	CapDonorsView         Capability = "donors:view"
	CapDonorsManage       Capability = "donors:manage"
	CapRegistrationReview Capability = "registrations:review"
	CapAlertsView         Capability = "alerts:view"
	CapAlertsManage       Capability = "alerts:manage"
	CapReportsView        Capability = "reports:view"
	CapUsersManage        Capability = "users:manage"
	CapNotifications      Capability = "notifications:view"
	CapChat               Capability = "chat:use"
	CapProfile            Capability = "profile:edit"
	CapDonorSelf          Capability = "donor:self"
)

// Policy role → capability grants plus the menu and route tables resolved against them.
type Policy struct {
	grants map[domain.Role]map[Capability]bool
	menu   []MenuItem
	routes []route
}

// NewPolicy builds a policy. Menu order is preserved.
func NewPolicy(grants map[domain.Role][]Capability, menu []MenuItem, routes map[string]Capability) *Policy {
	p := &Policy{grants: make(map[domain.Role]map[Capability]bool, len(grants))}
	for role, caps := range grants {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		p.grants[role] = set
	}
	p.menu = append(p.menu, menu...)
	for pattern, c := range routes {
		p.routes = append(p.routes, newRoute(pattern, c))
	}
	// exact segments before wildcards
	sort.SliceStable(p.routes, func(i, j int) bool {
		return p.routes[i].specificity() > p.routes[j].specificity()
	})
	return p
}

var everyone = []Capability{CapDashboard, CapAlertsView, CapNotifications, CapChat, CapProfile}

// DefaultPolicy the registry's roles.
func DefaultPolicy() *Policy {
	grants := map[domain.Role][]Capability{
		domain.RoleAdmin: append([]Capability{
			CapDonorsView, CapDonorsManage, CapRegistrationReview, CapAlertsManage, CapReportsView, CapUsersManage,
		}, everyone...),
		domain.RoleHealthOfficer: append([]Capability{
			CapDonorsView, CapDonorsManage, CapAlertsManage, CapReportsView,
		}, everyone...),
		domain.RoleHospitalStaff: append([]Capability{
			CapDonorsView, CapAlertsManage,
		}, everyone...),
		domain.RoleDonor: append([]Capability{
			CapDonorSelf,
		}, everyone...),
	}
	return NewPolicy(grants, defaultMenu, defaultRoutes)
}

// Allows reports whether role holds c.
func (p *Policy) Allows(role domain.Role, c Capability) bool {
	return p.grants[role][c]
}

// Capabilities held by role, sorted.
func (p *Policy) Capabilities(role domain.Role) []Capability {
	out := make([]Capability, 0, len(p.grants[role]))
	for c := range p.grants[role] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RolesWith roles holding c, in domain.Roles order.
func (p *Policy) RolesWith(c Capability) []domain.Role {
	var out []domain.Role
	for _, r := range domain.Roles {
		if p.Allows(r, c) {
			out = append(out, r)
		}
	}
	return out
}

package navigation

import "dugtong/internal/domain"

// MenuItem one navigation entry. AllowedRoles is filled from the policy.
type MenuItem struct {
	Label        string        `json:"label"`
	Path         string        `json:"path"`
	Icon         string        `json:"icon"`
	Capability   Capability    `json:"capability"`
	AllowedRoles []domain.Role `json:"allowedRoles,omitempty"`
}

var defaultMenu = []MenuItem{
	{Label: "Dashboard", Path: "/dashboard", Icon: "home", Capability: CapDashboard},
	{Label: "Donors", Path: "/donors", Icon: "people", Capability: CapDonorsView},
	{Label: "Registrations", Path: "/registrations", Icon: "how_to_reg", Capability: CapRegistrationReview},
	{Label: "Alerts", Path: "/alerts", Icon: "campaign", Capability: CapAlertsView},
	{Label: "New Alert", Path: "/alerts/new", Icon: "add_alert", Capability: CapAlertsManage},
	{Label: "Reports", Path: "/reports", Icon: "bar_chart", Capability: CapReportsView},
	{Label: "Users", Path: "/users", Icon: "manage_accounts", Capability: CapUsersManage},
	{Label: "My Donor Card", Path: "/my-donor", Icon: "volunteer_activism", Capability: CapDonorSelf},
	{Label: "Notifications", Path: "/notifications", Icon: "notifications", Capability: CapNotifications},
	{Label: "Assistant", Path: "/chat", Icon: "chat", Capability: CapChat},
	{Label: "Profile", Path: "/profile", Icon: "person", Capability: CapProfile},
	{Label: "Settings", Path: "/settings", Icon: "settings", Capability: CapProfile},
}

// Menu every entry, with AllowedRoles resolved.
func (p *Policy) Menu() []MenuItem {
	out := make([]MenuItem, 0, len(p.menu))
	for _, item := range p.menu {
		out = append(out, p.resolve(item))
	}
	return out
}

// FilterMenu entries the role may see, in menu order. A nil role sees nothing.
func (p *Policy) FilterMenu(role *domain.Role) []MenuItem {
	out := []MenuItem{}
	if role == nil {
		return out
	}
	for _, item := range p.menu {
		if p.Allows(*role, item.Capability) {
			out = append(out, p.resolve(item))
		}
	}
	return out
}

// AllowedRoles roles that see item.
func (p *Policy) AllowedRoles(item MenuItem) []domain.Role {
	return p.RolesWith(item.Capability)
}

func (p *Policy) resolve(item MenuItem) MenuItem {
	item.AllowedRoles = p.AllowedRoles(item)
	return item
}

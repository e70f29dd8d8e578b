package navigation

import (
	"strings"

	"dugtong/internal/domain"
)

// defaultRoutes screen paths. ":name" matches one segment. Menu paths are added automatically.
var defaultRoutes = map[string]Capability{
	"/donors/:id":             CapDonorsView,
	"/donors/new":             CapDonorsManage,
	"/donors/:id/edit":        CapDonorsManage,
	"/registrations/:id":      CapRegistrationReview,
	"/alerts/:id":             CapAlertsView,
	"/reports/donors":         CapReportsView,
	"/users/:id":              CapUsersManage,
	"/chat/:session":          CapChat,
	"/notifications/settings": CapProfile,
}

type route struct {
	segments   []string
	capability Capability
}

func newRoute(pattern string, c Capability) route {
	return route{segments: splitPath(pattern), capability: c}
}

func (r route) specificity() int {
	n := 0
	for _, s := range r.segments {
		if !strings.HasPrefix(s, ":") {
			n++
		}
	}
	return n*100 + len(r.segments)
}

func (r route) match(segments []string) bool {
	if len(segments) != len(r.segments) {
		return false
	}
	for i, s := range r.segments {
		if !strings.HasPrefix(s, ":") && s != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return []string{}
	}
	return strings.Split(p, "/")
}

// RouteCapability capability guarding path; false for unknown paths.
func (p *Policy) RouteCapability(path string) (Capability, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := splitPath(path)
	for _, item := range p.menu {
		if sameSegments(splitPath(item.Path), segments) {
			return item.Capability, true
		}
	}
	for _, r := range p.routes {
		if r.match(segments) {
			return r.capability, true
		}
	}
	return "", false
}

// CanAccess guard check: role may open path. Unknown paths and nil roles are denied.
func (p *Policy) CanAccess(role *domain.Role, path string) bool {
	if role == nil {
		return false
	}
	c, ok := p.RouteCapability(path)
	if !ok {
		return false
	}
	return p.Allows(*role, c)
}

func sameSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

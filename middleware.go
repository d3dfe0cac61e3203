package sitecookie

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/aadithya-v/sitecookie/store"
)

// TenantResolver maps a request to the tenant it belongs to.
type TenantResolver interface {
	ResolveTenant(r *http.Request) (Tenant, error)
}

// IdentityResolver reports the login state of the visitor behind a request.
type IdentityResolver func(r *http.Request) Identity

// HostTenants resolves tenants by request host, ignoring any port.
type HostTenants struct {
	Hosts map[string]Tenant
	// Fallback is used for unknown hosts when it has a positive ID.
	Fallback Tenant
}

// ResolveTenant implements TenantResolver.
func (h HostTenants) ResolveTenant(r *http.Request) (Tenant, error) {
	host := r.Host
	if hp, _, err := net.SplitHostPort(host); err == nil {
		host = hp
	}
	if t, ok := h.Hosts[strings.ToLower(host)]; ok {
		return t, nil
	}
	if h.Fallback.ID > 0 {
		return h.Fallback, nil
	}
	return Tenant{}, fmt.Errorf("%w: host %q", ErrTenantNotFound, host)
}

type ctxKey struct{}

// IssuedFromContext returns the cookie issued for the request by Middleware.
func IssuedFromContext(ctx context.Context) (*IssuedCookie, bool) {
	c, ok := ctx.Value(ctxKey{}).(*IssuedCookie)
	return c, ok
}

// HandleRequest runs the cookie pipeline for one request: the inbound tenant
// cookie is logged, then a fresh tenant cookie is issued and set on w.
// Usage log failures are logged and never block issuance.
func (m *Manager) HandleRequest(w http.ResponseWriter, r *http.Request, tenant Tenant, identity Identity) (*IssuedCookie, error) {
	ctx := r.Context()
	visitor := ExtractVisitor(r)
	name := CookieName(tenant)

	if value, ok := readCookie(r, name); ok {
		m.logUsage(ctx, store.UsageEntry{
			TenantID:    tenant.ID,
			CookieName:  name,
			CookieValue: value,
		})
	}

	sessionID, _ := readCookie(r, SessionCookieName)

	issued, err := m.Issue(ctx, IssueRequest{
		Tenant:            tenant,
		Identity:          identity,
		IP:                visitor.IP,
		ExistingSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	for _, c := range issued.Cookies() {
		http.SetCookie(w, c)
	}
	cookiesIssued.WithLabelValues(strconv.FormatBool(issued.NewSession), visitor.DeviceType).Inc()

	return issued, nil
}

func (m *Manager) logUsage(ctx context.Context, entry store.UsageEntry) {
	if m.config.UsageLogMode == ModeBatch {
		if err := m.Enqueue(ctx, entry); err != nil {
			m.log.Error().Err(err).Int64("tenant_id", entry.TenantID).Str("cookie", entry.CookieName).
				Msg("failed to buffer cookie usage")
		}
		return
	}

	inserted, err := m.RecordIfNew(ctx, entry)
	if err != nil {
		m.log.Error().Err(err).Int64("tenant_id", entry.TenantID).Str("cookie", entry.CookieName).
			Msg("failed to record cookie usage")
		return
	}
	if inserted {
		m.log.Debug().Int64("tenant_id", entry.TenantID).Str("cookie", entry.CookieName).Msg("recorded first cookie usage")
	}
}

// Middleware issues tenant cookies before calling next. Requests whose tenant
// cannot be resolved pass through untouched. A nil identify treats every
// visitor as anonymous.
func (m *Manager) Middleware(tenants TenantResolver, identify IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := tenants.ResolveTenant(r)
			if err != nil {
				m.log.Debug().Err(err).Str("host", r.Host).Msg("skipping cookie issuance")
				next.ServeHTTP(w, r)
				return
			}

			identity := Anonymous
			if identify != nil {
				identity = identify(r)
			}

			issued, err := m.HandleRequest(w, r, tenant, identity)
			if err != nil {
				m.log.Error().Err(err).Int64("tenant_id", tenant.ID).Msg("failed to issue tenant cookie")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, issued)))
		})
	}
}

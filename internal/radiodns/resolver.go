// Package radiodns discovers SPI document sources for DAB bearers via
// the RadioDNS CNAME/SRV lookup chain.
package radiodns

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"github.com/dabtools/epgdc/internal/log"
	"github.com/dabtools/epgdc/internal/mux"
	"github.com/dabtools/epgdc/internal/spi"
)

// DefaultRoot is the production RadioDNS root domain.
const DefaultRoot = "radiodns.org"

// Server is one ranked SRV candidate for an application.
type Server struct {
	Priority uint16
	Weight   uint16
	Target   string
	Port     uint16
}

// Discovery groups the bearers served by one provider domain together
// with the candidate servers answering for it.
type Discovery struct {
	FQDN    string
	Bearers []spi.Bearer
	Servers []Server
	// Secured reports the radiospi application variant (https scheme).
	Secured bool
}

// Lookup abstracts the DNS queries so tests can stub them.
type Lookup interface {
	CNAME(ctx context.Context, name string) (string, error)
	SRV(ctx context.Context, name string) ([]Server, error)
}

// Resolver drives discovery for a multiplex configuration.
type Resolver struct {
	Root   string
	Lookup Lookup
}

// New returns a resolver using the system DNS configuration.
func New(root string) (*Resolver, error) {
	if root == "" {
		root = DefaultRoot
	}
	lu, err := newSystemLookup()
	if err != nil {
		return nil, err
	}
	return &Resolver{Root: root, Lookup: lu}, nil
}

// Resolve walks every configured bearer, canonicalizes its lookup name
// and queries the EPG application SRV records. Bearers whose lookup fails
// are logged and skipped; grouping is by canonical provider domain.
func (r *Resolver) Resolve(ctx context.Context, m *mux.Multiplex) []Discovery {
	logger := log.WithComponentFromContext(ctx, "radiodns")

	byDomain := make(map[string][]spi.Bearer)
	var order []string
	for _, b := range m.Bearers() {
		name := m.StaticFQDN(b)
		if name == "" {
			name = b.FQDN(r.Root)
		}
		canonical, err := r.Lookup.CNAME(ctx, name)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "discovery.cname_failed").
				Str("bearer", b.String()).
				Str("fqdn", name).
				Msg("bearer lookup failed, skipping")
			continue
		}
		if canonical == "" {
			canonical = name
		}
		canonical = strings.TrimSuffix(canonical, ".")
		if _, seen := byDomain[canonical]; !seen {
			order = append(order, canonical)
		}
		byDomain[canonical] = append(byDomain[canonical], b)
	}

	var out []Discovery
	for _, domain := range order {
		d, err := r.discoverApplication(ctx, domain)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "discovery.srv_failed").
				Str("fqdn", domain).
				Msg("no EPG application advertised, skipping domain")
			continue
		}
		d.Bearers = byDomain[domain]
		logger.Info().
			Str("event", "discovery.resolved").
			Str("fqdn", domain).
			Int("bearers", len(d.Bearers)).
			Int("servers", len(d.Servers)).
			Bool("secured", d.Secured).
			Msg("provider resolved")
		out = append(out, d)
	}
	return out
}

// discoverApplication prefers the secured radiospi application and falls
// back to the plain radioepg one.
func (r *Resolver) discoverApplication(ctx context.Context, domain string) (Discovery, error) {
	if servers, err := r.Lookup.SRV(ctx, "_radiospi._tcp."+domain); err == nil && len(servers) > 0 {
		return Discovery{FQDN: domain, Servers: servers, Secured: true}, nil
	}
	servers, err := r.Lookup.SRV(ctx, "_radioepg._tcp."+domain)
	if err != nil {
		return Discovery{}, err
	}
	if len(servers) == 0 {
		return Discovery{}, fmt.Errorf("radiodns: no SRV records for %s", domain)
	}
	return Discovery{FQDN: domain, Servers: servers}, nil
}

// RankServers orders candidates by ascending priority, then descending
// weight. The order is the exact sequence the fetcher walks.
func RankServers(servers []Server) []Server {
	out := make([]Server, len(servers))
	copy(out, servers)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Weight > out[j].Weight
	})
	return out
}

// systemLookup queries the resolvers from /etc/resolv.conf.
type systemLookup struct {
	client  *dns.Client
	servers []string
}

func newSystemLookup() (*systemLookup, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("radiodns: read resolver config: %w", err)
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, s+":"+conf.Port)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("radiodns: no nameservers configured")
	}
	return &systemLookup{client: new(dns.Client), servers: servers}, nil
}

func (l *systemLookup) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	var lastErr error
	for _, server := range l.servers {
		reply, _, err := l.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode == dns.RcodeSuccess || reply.Rcode == dns.RcodeNameError {
			return reply, nil
		}
		lastErr = fmt.Errorf("radiodns: %s query for %s: rcode %s", dns.TypeToString[qtype], name, dns.RcodeToString[reply.Rcode])
	}
	return nil, lastErr
}

// CNAME returns the canonical name for the given lookup name, or "" when
// the name resolves without an alias.
func (l *systemLookup) CNAME(ctx context.Context, name string) (string, error) {
	reply, err := l.exchange(ctx, name, dns.TypeCNAME)
	if err != nil {
		return "", err
	}
	for _, rr := range reply.Answer {
		if cname, ok := rr.(*dns.CNAME); ok {
			return cname.Target, nil
		}
	}
	if reply.Rcode == dns.RcodeNameError {
		return "", fmt.Errorf("radiodns: %s does not exist", name)
	}
	return "", nil
}

// SRV returns the advertised servers for an application name.
func (l *systemLookup) SRV(ctx context.Context, name string) ([]Server, error) {
	reply, err := l.exchange(ctx, name, dns.TypeSRV)
	if err != nil {
		return nil, err
	}
	var out []Server
	for _, rr := range reply.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		// "." targets advertise that the application is explicitly not
		// available for the domain.
		if srv.Target == "." {
			continue
		}
		out = append(out, Server{
			Priority: srv.Priority,
			Weight:   srv.Weight,
			Target:   strings.TrimSuffix(srv.Target, "."),
			Port:     srv.Port,
		})
	}
	return out, nil
}

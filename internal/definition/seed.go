package definition

import (
	"context"

	"github.com/irisett-go/irisett/internal/store"
)

// seedDef is the built-in definition set this engine ships with,
// grounded on original_source/irisett/sql_data.py's SQL_MONITOR_DEFS
// (ping/http/https cert monitors against the standard Nagios plugin
// paths), translated into this package's {{var}}/{% if %} grammar, plus
// a DNS definition supplementing the original's three per SPEC_FULL.md.
var seedDefs = []store.MonitorDefinition{
	{
		Name:            "Ping monitor",
		Description:     "Monitor a host using ICMP echo request packets.",
		Active:          true,
		ExecutablePath:  "/usr/lib/nagios/plugins/check_ping",
		ArgvTemplate:    "-H {{hostname}} -w {{rtt}},{{pl}}% -c {{rtt}},{{pl}}%",
		DescriptionTmpl: "Ping monitor for {{hostname}}",
		Params: []store.ParamSpec{
			{Name: "hostname", DisplayName: "Hostname", Description: "Host to monitor", Required: true},
			{Name: "rtt", DisplayName: "Max round trip time", Description: "Maximum permitted round trip time in ms", Required: false, DefaultValue: "500"},
			{Name: "pl", DisplayName: "Max packet loss", Description: "Maximum permitted packet loss in percent", Required: false, DefaultValue: "50"},
		},
	},
	{
		Name:            "HTTP monitor",
		Description:     "Monitor a website.",
		Active:          true,
		ExecutablePath:  "/usr/lib/nagios/plugins/check_http",
		ArgvTemplate:    `-I {{hostname}}{% if vhost %} -H {{vhost}}{% endif %} -f follow{% if match %} -s "{{match}}"{% endif %}{% if ssl %} -S{% endif %}{% if url %} -u {{url}}{% endif %}`,
		DescriptionTmpl: `HTTP monitor for {% if vhost %}{{vhost}}{% else %}{{hostname}}{% endif %}`,
		Params: []store.ParamSpec{
			{Name: "hostname", DisplayName: "Hostname of server/site", Description: "Hostname of the site to monitor", Required: true},
			{Name: "vhost", DisplayName: "Virtual host", Description: "Virtual host to monitor", Required: false},
			{Name: "match", DisplayName: "Match string", Description: "Match a string in the returned page", Required: false},
			{Name: "ssl", DisplayName: "Use HTTPS/SSL", Description: "Use HTTPS/SSL monitoring", Required: false},
			{Name: "url", DisplayName: "URL to monitor", Description: "Monitor a specific URL", Required: false, DefaultValue: "/"},
		},
	},
	{
		Name:            "HTTPS certificate monitor",
		Description:     "Monitor a website's SSL certificate.",
		Active:          true,
		ExecutablePath:  "/usr/lib/nagios/plugins/check_http",
		ArgvTemplate:    `-I {{hostname}}{% if vhost %} -H {{vhost}}{% endif %} -C {{age}},{{age}}`,
		DescriptionTmpl: `HTTPS certificate monitor for {% if vhost %}{{vhost}}{% else %}{{hostname}}{% endif %}`,
		Params: []store.ParamSpec{
			{Name: "hostname", DisplayName: "Hostname of server/site", Description: "Hostname of the site to monitor", Required: true},
			{Name: "vhost", DisplayName: "Virtual host", Description: "Virtual host to monitor", Required: false},
			{Name: "age", DisplayName: "Certificate max age", Description: "Max age (in days) of the site certificate", Required: false, DefaultValue: "14"},
		},
	},
	{
		Name:            "DNS monitor",
		Description:     "Monitor a DNS server's resolution of a hostname.",
		Active:          true,
		ExecutablePath:  "/usr/lib/nagios/plugins/check_dns",
		ArgvTemplate:    `-H {{hostname}}{% if server %} -s {{server}}{% endif %}{% if expected %} -a {{expected}}{% endif %}`,
		DescriptionTmpl: "DNS monitor for {{hostname}}",
		Params: []store.ParamSpec{
			{Name: "hostname", DisplayName: "Hostname", Description: "Hostname to resolve", Required: true},
			{Name: "server", DisplayName: "DNS server", Description: "DNS server to query", Required: false},
			{Name: "expected", DisplayName: "Expected address", Description: "Expected resolved address", Required: false},
		},
	},
}

// Seed installs the built-in definitions, upserting by name so it is
// safe to call on every startup (spec.md §5's load-time sequence).
func Seed(ctx context.Context, r *Registry) error {
	for _, def := range seedDefs {
		existing, ok := r.FindByName(def.Name)
		if ok {
			if err := r.Update(ctx, existing.ID, func(d *store.MonitorDefinition) {
				d.Description = def.Description
				d.Active = def.Active
				d.ExecutablePath = def.ExecutablePath
				d.ArgvTemplate = def.ArgvTemplate
				d.DescriptionTmpl = def.DescriptionTmpl
			}); err != nil {
				return err
			}
			for _, p := range def.Params {
				if err := r.SetParameter(ctx, existing.ID, p); err != nil {
					return err
				}
			}
			continue
		}

		d := def
		d.Params = append([]store.ParamSpec(nil), def.Params...)
		if _, err := r.Create(ctx, &d); err != nil {
			return err
		}
	}
	return nil
}

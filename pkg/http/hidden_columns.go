package http

// defaultHiddenColumns lists the flattened columns that carry little
// diagnostic signal for call triage. UIs hide them unless asked.
var defaultHiddenColumns = []string{
	"session.id", "usr.id", "attribute.os.build",
	"type", "application.id", "session.type", "view.url", "view.referrer",
	"usr.name", "usr.email", "action.type", "action.target.name",
	"resource.type", "resource.url", "error.message", "error.source", "error.stack",
	"device.type", "os.name", "browser.name",
	"attributes.os.build", "attributes.os.name", "attributes.os.version_major",
	"attributes.resource.size", "attributes.resource.method",
	"attributes.resource.provider.domain", "attributes.resource.provider.name", "attributes.resource.provider.type",
	"attributes.resource.type", "attributes.resource.id", "attributes.resource.url",
	"attributes.resource.url_host", "attributes.resource.url_scheme", "attributes.resource.url_path_group",
	"attributes.session.matching_retention_filter.name", "attributes.session.matching_retention_filter.id",
	"attributes.session.type", "attributes.session.plan", "attributes.type",
	"attributes.geo.continent", "attributes.geo.country", "attributes.geo.as.domain", "attributes.geo.as.name", "attributes.geo.as.type",
	"attributes.geo.country_iso_code", "attributes.geo.city", "attributes.geo.latitude", "attributes.geo.continent_code",
	"attributes.geo.subdivision_iso_code", "attributes.geo.country_subdivision_iso_code", "attributes.geo.location",
	"attributes.geo.country_subdivision", "attributes.geo.longitude",
	"attributes.view.url_path_group", "attributes.view.id", "attributes.view.url", "attributes.view.url_path",
	"attributes.application.name", "attributes.application.short_name", "attributes.application.id",
	"attributes.connectivity.cellular.carrier_name", "attributes.connectivity.status",
	"attributes.usr.anonymous_id", "attributes.usr.usr_id", "attributes.service",
	"attributes.device.name",
	"attributes.device.model",
	"attributes.device.type",
	"attributes.device.brand",
	"attributes.device.architecture",
	"attributes._dd.format_version",
	"tags",
	"attributes.usr.id",
	"timestamp",
}

// DefaultHiddenColumns returns a copy of the default hidden column
// list.
func DefaultHiddenColumns() []string {
	out := make([]string, len(defaultHiddenColumns))
	copy(out, defaultHiddenColumns)
	return out
}

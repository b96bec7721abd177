// Package checklist holds the static catalog of per-job checklist templates
// and the progress calculation over a set of checked item names.
package checklist

// Template is a named, ordered list of checklist items.
type Template struct {
	Name  string
	Items []string
}

// Config selects which templates apply to a job. Kind is the job type name
// ("Delivery", "Installation", "Pickup"); unknown kinds only get the
// post-tinkering template when that flag is set.
type Config struct {
	Kind                 string
	IncludesInstallation bool
	PostTinkering        bool
}

// The catalog is read-only; Templates hands out copies.
var (
	delivery = Template{
		Name: "Delivery",
		Items: []string{
			"Confirm appointment with customer",
			"Load appliance onto truck",
			"Secure load with straps",
			"Bring dolly and moving blankets",
			"Inspect appliance for damage",
			"Take photos",
			"Collect customer signature",
		},
	}

	installation = Template{
		Name: "Installation",
		Items: []string{
			"Bring installation kit",
			"Shut off water/gas supply",
			"Connect and check hookups",
			"Level appliance",
			"Run test cycle",
			"Take photos",
			"Remove packaging",
		},
	}

	pickup = Template{
		Name: "Pickup",
		Items: []string{
			"Confirm pickup address",
			"Bring dolly and moving blankets",
			"Disconnect appliance",
			"Load and secure appliance",
			"Leave area clean",
		},
	}

	postTinkering = Template{
		Name: "Post-Tinkering",
		Items: []string{
			"Call customer for follow-up",
			"Check for leaks or noise reports",
			"Log adjustments made",
		},
	}
)

// Templates returns the ordered templates for cfg.
func Templates(cfg Config) []Template {
	var out []Template
	switch cfg.Kind {
	case "Delivery":
		out = append(out, delivery.clone())
		if cfg.IncludesInstallation {
			out = append(out, installation.clone())
		}
	case "Installation":
		out = append(out, installation.clone())
	case "Pickup":
		out = append(out, pickup.clone())
	}
	if cfg.PostTinkering {
		out = append(out, postTinkering.clone())
	}
	return out
}

func (t Template) clone() Template {
	return Template{Name: t.Name, Items: append([]string(nil), t.Items...)}
}

// AllItems flattens the templates for cfg in template order, then item order.
// A name shared by two templates appears twice.
func AllItems(cfg Config) []string {
	var out []string
	for _, t := range Templates(cfg) {
		out = append(out, t.Items...)
	}
	return out
}

// Progress is the fraction of items whose name is in checked. An empty item
// list is vacuously complete.
func Progress(items []string, checked map[string]struct{}) float64 {
	if len(items) == 0 {
		return 1.0
	}
	done := 0
	for _, name := range items {
		if _, ok := checked[name]; ok {
			done++
		}
	}
	return float64(done) / float64(len(items))
}

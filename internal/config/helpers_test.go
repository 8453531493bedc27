package config

import (
	"github.com/JakeFAU/isocatalog/internal/policy/admission"
	"github.com/JakeFAU/isocatalog/internal/sources"
)

func hostLimit(host string, permits int64) admission.HostLimit {
	return admission.HostLimit{Host: host, Permits: permits}
}

func sourceDef(name, kind string) sources.Definition {
	return sources.Definition{
		Kind:        kind,
		Name:        name,
		URL:         "https://api.example/releases",
		FilePattern: `\.iso$`,
	}
}

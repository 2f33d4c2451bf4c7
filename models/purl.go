package models

import (
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"
)

type Purl struct {
	packageurl.PackageURL
}

func NewPurl(purl string) (Purl, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return Purl{}, err
	}

	return Purl{PackageURL: p}, nil
}

// PurlFromPackage builds the package URL of an installed package. Composer
// names are always vendor/name, npm names may carry an @scope.
func PurlFromPackage(ecosystem string, name string, version string) (Purl, error) {
	purl := Purl{}
	if name == "" {
		return purl, fmt.Errorf("invalid package name")
	}

	switch ecosystem {
	case EcosystemComposer:
		parts := strings.SplitN(name, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return purl, fmt.Errorf("invalid composer package name %q", name)
		}
		purl.Type = packageurl.TypeComposer
		purl.Namespace = strings.ToLower(parts[0])
		purl.Name = strings.ToLower(parts[1])
	case EcosystemNpm:
		purl.Type = packageurl.TypeNPM
		if strings.HasPrefix(name, "@") {
			parts := strings.SplitN(name, "/", 2)
			if len(parts) != 2 || parts[1] == "" {
				return purl, fmt.Errorf("invalid npm package name %q", name)
			}
			purl.Namespace = parts[0]
			purl.Name = parts[1]
		} else {
			purl.Name = name
		}
	default:
		return purl, fmt.Errorf("unsupported ecosystem %q", ecosystem)
	}

	purl.Version = version
	return purl, nil
}

func (p *Purl) FullName() string {
	name := p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + name
	}
	return name
}

// Link points at the public registry page of the package.
func (p *Purl) Link() string {
	repo := p.FullName()
	switch p.Type {
	case packageurl.TypeComposer:
		return fmt.Sprintf("https://packagist.org/packages/%s", repo)
	case packageurl.TypeNPM:
		return fmt.Sprintf("https://www.npmjs.com/package/%s", repo)
	}
	return ""
}

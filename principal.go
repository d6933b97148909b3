package adbind

import (
	"strings"
)

// DomainFromRootDN derives a dotted DNS domain from a root distinguished name.
//
// The root DN is split on ",", every component is split on "=" and the value is
// kept only when the component has exactly one "=". Components that do not
// match (empty, missing "=", or carrying more than one "=") are skipped.
//
//	DomainFromRootDN("dc=corp,dc=example,dc=com") // "corp.example.com"
func DomainFromRootDN(rootDN string) (string, error) {
	var labels []string
	for _, component := range strings.Split(rootDN, ",") {
		parts := strings.Split(component, "=")
		if len(parts) != 2 {
			continue
		}
		labels = append(labels, parts[1])
	}

	domain := strings.Join(labels, ".")
	if domain == "" {
		return "", &ConfigError{
			Field:   "RootDN",
			Message: "root DN yields no domain components",
		}
	}
	return domain, nil
}

// BuildPrincipalDN returns the user principal name "username@domain" for the
// given root DN. The username is used verbatim.
func BuildPrincipalDN(username, rootDN string) (string, error) {
	domain, err := DomainFromRootDN(rootDN)
	if err != nil {
		return "", err
	}
	return username + "@" + domain, nil
}
